package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric は指定した名前とラベルに一致するメトリクスを返す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if matchLabels(m, labels) {
				return m
			}
		}
	}
	t.Fatalf("metric %s%v not found", name, labels)
	return nil
}

func matchLabels(m *dto.Metric, labels map[string]string) bool {
	got := make(map[string]string)
	for _, lp := range m.GetLabel() {
		got[lp.GetName()] = lp.GetValue()
	}
	for k, v := range labels {
		if got[k] != v {
			return false
		}
	}
	return true
}

func TestNewCollector_ReturnsNonNil(t *testing.T) {
	if NewCollector(prometheus.NewRegistry()) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordRegistration_CountsByResult は結果ラベル別に登録数が数えられることを検証する。
func TestRecordRegistration_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRegistration(ResultSuccess)
	c.RecordRegistration(ResultSuccess)
	c.RecordRegistration(ResultFailure)

	if v := findMetric(t, reg, "carmarket_registrations_total", map[string]string{"result": "success"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("success = %v, want 2", v)
	}
	if v := findMetric(t, reg, "carmarket_registrations_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("failure = %v, want 1", v)
	}
}

func TestRecordLoginAndConfirmMail(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(ResultFailure)
	c.RecordConfirmMail(ResultSuccess)

	if v := findMetric(t, reg, "carmarket_logins_total", map[string]string{"result": "failure"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("logins failure = %v, want 1", v)
	}
	if v := findMetric(t, reg, "carmarket_confirm_mails_total", map[string]string{"result": "success"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("confirm mails success = %v, want 1", v)
	}
}

func TestRecordCarCreated(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordCarCreated()
	c.RecordCarCreated()
	c.RecordCarCreated()

	if v := findMetric(t, reg, "carmarket_cars_created_total", nil).GetCounter().GetValue(); v != 3 {
		t.Errorf("cars created = %v, want 3", v)
	}
}

// TestRecordHTTPStatus_WithStatusCodeLabel はステータスコードラベル付きで記録されることを検証する。
func TestRecordHTTPStatus_WithStatusCodeLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(400)

	if v := findMetric(t, reg, "carmarket_http_status_total", map[string]string{"status_code": "200"}).GetCounter().GetValue(); v != 2 {
		t.Errorf("status 200 = %v, want 2", v)
	}
	if v := findMetric(t, reg, "carmarket_http_status_total", map[string]string{"status_code": "400"}).GetCounter().GetValue(); v != 1 {
		t.Errorf("status 400 = %v, want 1", v)
	}
}

func TestRecordRequestLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestLatency(150 * time.Millisecond)

	h := findMetric(t, reg, "carmarket_http_request_duration_seconds", nil).GetHistogram()
	if h.GetSampleCount() != 1 {
		t.Errorf("sample count = %d, want 1", h.GetSampleCount())
	}
	if h.GetSampleSum() < 0.14 || h.GetSampleSum() > 0.16 {
		t.Errorf("sample sum = %v, want ~0.15", h.GetSampleSum())
	}
}

// TestNewCollector_DuplicateRegistrationPanics は同一レジストリへの二重登録でpanicすることを検証する。
func TestNewCollector_DuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewCollector(reg)

	defer func() {
		if recover() == nil {
			t.Error("expected panic on duplicate registration")
		}
	}()
	NewCollector(reg)
}
