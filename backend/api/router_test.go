package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"halo/backend/repository/events"
	"halo/backend/repository/memory"
	"halo/backend/service"
	"halo/backend/service/geoip"
	"halo/backend/service/profiles"
	"halo/backend/service/supervisor"
	"halo/backend/service/sysproxy"
)

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore(events.NewBus())
	profileSvc := profiles.NewService(memory.NewProfileRepo(store))
	states := memory.NewStateRepo(store)
	facade := service.NewFacade(
		profileSvc, states,
		supervisor.New(), sysproxy.New(), geoip.NewService(t.TempDir()),
		nil, nil, nil,
	)
	return NewRouter(facade)
}

func doJSON(t *testing.T, engine *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	engine := newTestRouter(t)
	w := doJSON(t, engine, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("health = %d", w.Code)
	}
}

func TestProfileCRUD(t *testing.T) {
	engine := newTestRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/profiles",
		`{"name":"home","server":"example.com:443","listen":"127.0.0.1:30000"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", w.Code, w.Body.String())
	}
	var created struct {
		ID          string `json:"id"`
		RoutingMode string `json:"routing_mode"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("no id assigned")
	}
	if created.RoutingMode != "bypass_cn" {
		t.Fatalf("routing_mode = %s, want default bypass_cn", created.RoutingMode)
	}

	t.Run("duplicate name conflicts", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPost, "/profiles",
			`{"name":"home","server":"x:1","listen":"y:2"}`)
		if w.Code != http.StatusConflict {
			t.Fatalf("duplicate create = %d", w.Code)
		}
	})

	t.Run("list includes current pointer", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodGet, "/profiles", "")
		if w.Code != http.StatusOK {
			t.Fatalf("list = %d", w.Code)
		}
		var resp struct {
			Profiles  []json.RawMessage `json:"profiles"`
			CurrentID string            `json:"current_profile_id"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(resp.Profiles) != 1 || resp.CurrentID != created.ID {
			t.Fatalf("resp = %+v", resp)
		}
	})

	t.Run("update", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPut, "/profiles/"+created.ID,
			`{"name":"home","server":"new.example.com:443","listen":"127.0.0.1:30000"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("update = %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("update missing id", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPut, "/profiles/no-such-id",
			`{"name":"ghost","server":"x:1","listen":"y:2"}`)
		if w.Code != http.StatusNotFound {
			t.Fatalf("update missing = %d", w.Code)
		}
	})

	t.Run("rename", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPost, "/profiles/"+created.ID+"/rename", `{"name":"office"}`)
		if w.Code != http.StatusOK {
			t.Fatalf("rename = %d: %s", w.Code, w.Body.String())
		}
	})

	t.Run("delete last profile refused", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodDelete, "/profiles/"+created.ID, "")
		if w.Code != http.StatusConflict {
			t.Fatalf("delete last = %d", w.Code)
		}
	})

	t.Run("delete non-last succeeds", func(t *testing.T) {
		w := doJSON(t, engine, http.MethodPost, "/profiles",
			`{"name":"second","server":"x:1","listen":"y:2"}`)
		if w.Code != http.StatusCreated {
			t.Fatalf("create second = %d", w.Code)
		}
		var second struct {
			ID string `json:"id"`
		}
		_ = json.Unmarshal(w.Body.Bytes(), &second)

		w = doJSON(t, engine, http.MethodDelete, "/profiles/"+second.ID, "")
		if w.Code != http.StatusNoContent {
			t.Fatalf("delete = %d: %s", w.Code, w.Body.String())
		}
	})
}

func TestSelectProfile(t *testing.T) {
	engine := newTestRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/profiles",
		`{"name":"a","server":"x:1","listen":"y:2"}`)
	var created struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &created)

	w = doJSON(t, engine, http.MethodPost, "/profiles/"+created.ID+"/select", "")
	if w.Code != http.StatusOK {
		t.Fatalf("select = %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, engine, http.MethodPost, "/profiles/no-such-id/select", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("select missing = %d", w.Code)
	}
}

func TestStatus(t *testing.T) {
	engine := newTestRouter(t)
	w := doJSON(t, engine, http.MethodGet, "/proxy/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var st struct {
		Running bool `json:"running"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if st.Running {
		t.Fatalf("fresh instance reports running")
	}
}

func TestKernelLogsSinceValidation(t *testing.T) {
	engine := newTestRouter(t)

	w := doJSON(t, engine, http.MethodGet, "/proxy/logs?since=abc", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("bad since = %d", w.Code)
	}

	w = doJSON(t, engine, http.MethodGet, "/proxy/logs?since=0", "")
	if w.Code != http.StatusOK {
		t.Fatalf("logs = %d", w.Code)
	}
}

func TestStartWithoutServerRefused(t *testing.T) {
	engine := newTestRouter(t)

	w := doJSON(t, engine, http.MethodPost, "/profiles",
		`{"name":"incomplete","server":"","listen":""}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d", w.Code)
	}

	w = doJSON(t, engine, http.MethodPost, "/proxy/start", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("start without server = %d: %s", w.Code, w.Body.String())
	}
}

func TestAutostartPref(t *testing.T) {
	engine := newTestRouter(t)

	w := doJSON(t, engine, http.MethodPut, "/settings/autostart", `{"enabled":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("autostart = %d: %s", w.Code, w.Body.String())
	}
	var st struct {
		AutoStartChecked bool `json:"auto_start_checked"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.AutoStartChecked {
		t.Fatalf("auto_start_checked not reflected in status")
	}
}

func TestGeoWildcardsEmptyBeforeLoad(t *testing.T) {
	engine := newTestRouter(t)
	w := doJSON(t, engine, http.MethodGet, "/geo/wildcards", "")
	if w.Code != http.StatusOK {
		t.Fatalf("geo = %d", w.Code)
	}
	var resp struct {
		Wildcards []string `json:"wildcards"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Wildcards) != 0 {
		t.Fatalf("wildcards = %v", resp.Wildcards)
	}
}
