package respond

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, "done", Fields{"count": 2})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
	body := decode(t, rec)
	if body["success"] != true || body["message"] != "done" || body["count"] != float64(2) {
		t.Errorf("body = %v", body)
	}
}

func TestError(t *testing.T) {
	rec := httptest.NewRecorder()
	Error(rec, http.StatusForbidden, "forbidden")
	body := decode(t, rec)
	if rec.Code != http.StatusForbidden || body["success"] != false || body["error"] != "forbidden" {
		t.Errorf("status = %d body = %v", rec.Code, body)
	}
}

func TestValidation(t *testing.T) {
	rec := httptest.NewRecorder()
	Validation(rec, map[string]string{"email": "required"})
	body := decode(t, rec)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d", rec.Code)
	}
	errs, ok := body["errors"].(map[string]any)
	if !ok || errs["email"] != "required" {
		t.Errorf("errors = %v", body["errors"])
	}
}

func TestJSON_EmptyMessageOmitted(t *testing.T) {
	rec := httptest.NewRecorder()
	JSON(rec, http.StatusCreated, "", nil)
	body := decode(t, rec)
	if _, ok := body["message"]; ok {
		t.Errorf("message should be omitted: %v", body)
	}
	if body["success"] != true {
		t.Errorf("success = %v", body["success"])
	}
}
