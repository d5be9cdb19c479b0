package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func scrape(t *testing.T, h http.Handler) (int, string) {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	return rr.Code, rr.Body.String()
}

func TestProvider_ServesRuntimeAndBuildInfo(t *testing.T) {
	p := Init(Config{Enabled: true, Build: BuildInfo{Version: "test", Revision: "r", Branch: "b", BuildDate: "now"}})

	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "test_gauge", Help: "smoke"})
	p.Register(g)
	g.Set(42)
	if n := testutil.CollectAndCount(g); n != 1 {
		t.Fatalf("test_gauge samples=%d want 1", n)
	}

	code, body := scrape(t, p.Handler())
	if code != http.StatusOK {
		t.Fatalf("status=%d want 200", code)
	}
	for _, want := range []string{"go_goroutines", "promhttp_metric_handler_requests_total", `citygml_build_info{branch="b"`} {
		if !strings.Contains(body, want) {
			t.Fatalf("expected %q in payload; got:\n%s", want, body)
		}
	}
}

func TestProvider_Disabled(t *testing.T) {
	p := Init(Config{})
	if p.Enabled() {
		t.Fatalf("expected disabled provider")
	}
	if code, _ := scrape(t, p.Handler()); code != http.StatusNotFound {
		t.Fatalf("status=%d want 404", code)
	}
}

func TestResolveBuild_DefaultsVersion(t *testing.T) {
	if v := resolveBuild(BuildInfo{}).Version; v == "" {
		t.Fatalf("version must never be empty")
	}
	if v := resolveBuild(BuildInfo{Version: "1.2.3"}).Version; v != "1.2.3" {
		t.Fatalf("explicit version overridden: %q", v)
	}
}
