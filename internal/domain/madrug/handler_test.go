package madrug

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
)

func setupHandlerTest() (*echo.Echo, *fixture) {
	f := newFixture()
	e := echo.New()
	NewHandler(f.svc).RegisterRoutes(e.Group("/api/v1"))
	return e, f
}

func doRequest(e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestCreateRequisitionHandler(t *testing.T) {
	e, f := setupHandlerTest()
	drugID := f.drugs.add("Paracetamol", 0, decimal.NewFromInt(2))

	body := fmt.Sprintf(`{"items":[{"drug_id":%q,"quantity":10}]}`, drugID)
	rec := doRequest(e, http.MethodPost, "/api/v1/ma-drugs", body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	var got MaDrug
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusPending || !strings.HasPrefix(got.RequestNumber, "REQ-") {
		t.Errorf("unexpected requisition: %+v", got)
	}
}

func TestReceiveHandler(t *testing.T) {
	e, f := setupHandlerTest()
	drugID := f.drugs.add("Amoxicillin", 0, decimal.NewFromInt(1))
	m := f.createRequisition(t, drugID, 8)

	body := fmt.Sprintf(`{"receipts":[{"item_id":%q,"expiry_date":"2027-03-01T00:00:00Z"}]}`, m.Items[0].ID)
	rec := doRequest(e, http.MethodPost, "/api/v1/ma-drugs/"+m.ID.String()+"/receive", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var got MaDrug
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got.Status != StatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if q := f.drugs.drugs[drugID].Quantity; q != 8 {
		t.Errorf("stock = %d, want 8", q)
	}

	// Second receive conflicts.
	rec = doRequest(e, http.MethodPost, "/api/v1/ma-drugs/"+m.ID.String()+"/receive", body)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d on double receive, want 409", rec.Code)
	}
}

func TestReceiveHandlerMissingExpiry(t *testing.T) {
	e, f := setupHandlerTest()
	drugID := f.drugs.add("Losartan", 0, decimal.NewFromInt(1))
	m := f.createRequisition(t, drugID, 5)

	rec := doRequest(e, http.MethodPost, "/api/v1/ma-drugs/"+m.ID.String()+"/receive", `{"receipts":[]}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400 for missing expiry", rec.Code)
	}
}
