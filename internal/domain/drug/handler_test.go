package drug

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func setupHandlerTest() (*echo.Echo, *Handler, *mockDrugRepo, *mockLotRepo) {
	drugs := newMockDrugRepo()
	lots := newMockLotRepo()
	h := NewHandler(NewService(drugs, lots))
	e := echo.New()
	h.RegisterRoutes(e.Group("/api/v1"))
	return e, h, drugs, lots
}

func TestCreateDrugHandler(t *testing.T) {
	e, _, _, _ := setupHandlerTest()

	body := `{"working_code":"PARA500","name":"Paracetamol 500mg","unit":"tab","price":"2.50"}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/drugs", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var got Drug
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Name != "Paracetamol 500mg" || got.Quantity != 0 {
		t.Errorf("unexpected drug in response: %+v", got)
	}
}

func TestCreateDrugHandlerRejectsInitialStock(t *testing.T) {
	e, _, _, _ := setupHandlerTest()

	body := `{"working_code":"X","name":"X","quantity":5}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/drugs", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestGetDrugHandler(t *testing.T) {
	e, _, drugs, _ := setupHandlerTest()

	d := &Drug{WorkingCode: "IBU400", Name: "Ibuprofen 400mg"}
	if err := drugs.Create(context.Background(), d); err != nil {
		t.Fatalf("seed drug: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/drugs/"+d.ID.String(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/drugs/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for malformed id", rec.Code)
	}
}

func TestListDrugsHandlerPaginates(t *testing.T) {
	e, _, drugs, _ := setupHandlerTest()

	for _, code := range []string{"A1", "B2", "C3"} {
		if err := drugs.Create(context.Background(), &Drug{WorkingCode: code, Name: "Drug " + code}); err != nil {
			t.Fatalf("seed drug: %v", err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/drugs?limit=2&offset=0", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Total   int  `json:"total"`
		HasMore bool `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Total != 3 || !resp.HasMore {
		t.Errorf("total=%d has_more=%v, want total=3 has_more=true", resp.Total, resp.HasMore)
	}
}

func TestDeleteDrugHandler(t *testing.T) {
	e, _, drugs, _ := setupHandlerTest()

	d := &Drug{WorkingCode: "DEL1", Name: "To Delete"}
	if err := drugs.Create(context.Background(), d); err != nil {
		t.Fatalf("seed drug: %v", err)
	}

	req := httptest.NewRequest(http.MethodDelete, "/api/v1/drugs/"+d.ID.String(), nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", rec.Code)
	}
}
