package http

import (
	"net/http"
	"strings"
	"testing"

	"tracing-quiz-service/internal/domain"
)

func post(t *testing.T, url string) int {
	t.Helper()
	resp, err := http.Post(url, "application/json", nil)
	if err != nil {
		t.Fatalf("post %s: %v", url, err)
	}
	_ = resp.Body.Close()
	return resp.StatusCode
}

func TestDeviceModeValidation(t *testing.T) {
	server, _ := newTestServer(t)
	for _, body := range []string{`{"mode":"pirate"}`, `{"mode":"online"}`, `nope`} {
		req, _ := http.NewRequest(http.MethodPut, server.URL+"/devices/tablet/mode", strings.NewReader(body))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("put mode: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, resp.StatusCode)
		}
	}
}

func TestDeviceShopEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	setMode(t, server, "tablet", `{"mode":"guest"}`)

	var catalog []domain.AvatarBorder
	getJSON(t, server.URL+"/devices/tablet/borders", &catalog)
	if len(catalog) != 4 || catalog[3].Cost != 6 {
		t.Fatalf("unexpected catalog %+v", catalog)
	}

	if code := post(t, server.URL+"/devices/tablet/borders/1/purchase"); code != http.StatusConflict {
		t.Fatalf("expected 409 with empty balance, got %d", code)
	}
	if code := post(t, server.URL+"/devices/tablet/borders/7/purchase"); code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown border, got %d", code)
	}
	if code := post(t, server.URL+"/devices/tablet/borders/1/equip"); code != http.StatusConflict {
		t.Fatalf("expected 409 for unowned border, got %d", code)
	}

	var profile domain.Profile
	getJSON(t, server.URL+"/devices/tablet/profile", &profile)
	if profile.Mode != domain.ModeGuest || profile.StarBalance != 0 || len(profile.Borders) != 0 {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestDeviceOnlineWithoutBackend(t *testing.T) {
	server, _ := newTestServer(t)
	resp, err := http.Get(server.URL + "/devices/phone/profile")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Fatalf("expected 502 without account backend, got %d", resp.StatusCode)
	}
}
