package waypoint

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
)

func testApp(store Store) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	RegisterRoutes(app.Group("/waypoints"), store)
	return app
}

// brokenStore fails every write.
type brokenStore struct{ Store }

func (brokenStore) Save(context.Context, string, json.RawMessage) error {
	return errors.New("disk full")
}

func (brokenStore) All(context.Context) (map[string]json.RawMessage, error) {
	return nil, errors.New("disk full")
}

func TestRoutes(t *testing.T) {
	app := testApp(testStore(t))

	tests := []struct {
		name     string
		method   string
		path     string
		body     string
		want     int
		contains string
	}{
		{"save", "POST", "/waypoints/save/pick", `{"j0":1}`, 200, ""},
		{"save invalid json", "POST", "/waypoints/save/pick", `{`, 400, "invalid"},
		{"save invalid name", "POST", "/waypoints/save/a..b", `{}`, 400, "invalid waypoint name"},
		{"load", "GET", "/waypoints/load/pick", "", 200, `"j0": 1`},
		{"load missing", "GET", "/waypoints/load/nope", "", 400, "not found"},
		{"all", "GET", "/waypoints/all", "", 200, `"pick"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("Request error: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("Status = %d, want %d", resp.StatusCode, tt.want)
			}
			body, _ := io.ReadAll(resp.Body)
			if tt.contains != "" && !strings.Contains(string(body), tt.contains) {
				t.Errorf("body %s does not contain %s", body, tt.contains)
			}
		})
	}
}

func TestRoutesWriteFailure(t *testing.T) {
	app := testApp(brokenStore{})

	req := httptest.NewRequest("POST", "/waypoints/save/pick", strings.NewReader(`{}`))
	resp, err := app.Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("Status = %d, want 500", resp.StatusCode)
	}

	resp, err = app.Test(httptest.NewRequest("GET", "/waypoints/all", nil))
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != 500 {
		t.Errorf("Status = %d, want 500", resp.StatusCode)
	}
}

func TestClientAgainstServer(t *testing.T) {
	app := testApp(testStore(t))
	go app.Listen(":18195")
	defer app.Shutdown()
	time.Sleep(100 * time.Millisecond)

	c := NewClient("http://localhost:18195/", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.Save(ctx, "home", json.RawMessage(`{"j0":0,"j1":0}`)); err != nil {
		t.Fatalf("Save: %v", err)
	}

	doc, err := c.Load(ctx, "home")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	var v map[string]float64
	if err := json.Unmarshal(doc, &v); err != nil || len(v) != 2 {
		t.Errorf("Load = %s (%v)", doc, err)
	}

	if _, err := c.Load(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	all, err := c.All(ctx)
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if _, ok := all["home"]; !ok || len(all) != 1 {
		t.Errorf("All = %v", all)
	}

	if err := c.Save(ctx, "../etc", json.RawMessage(`{}`)); !errors.Is(err, ErrInvalidName) {
		t.Errorf("err = %v, want ErrInvalidName", err)
	}
}
