//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."   // relative to ./e2e
const mainPkgRel = "./cmd" // main.go lives in cmd/

const mqttPort = nat.Port("1883/tcp")

const alarmTopic = "bins/alarms"

func TestSmoke_Dashboard(t *testing.T) {
	repoRoot := repoRootPath(t)

	brokerHost, brokerPort := startMosquitto(t)
	backend := startBackend(t)

	bin := buildBinary(t, repoRoot)
	addr := pickFreeAddr(t)

	cmd := exec.Command(bin)
	cmd.Dir = t.TempDir()
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=info",
		"HTTP_ADDR="+addr,
		"DB_DRIVER=sqlite3",
		"SQLITE_PATH="+filepath.Join(t.TempDir(), "app.db"),
		"API_BASE_URL="+backend.URL,
		"DISPLAY_TZ=UTC",
		"MQTT_BROKER="+brokerHost,
		"MQTT_PORT="+brokerPort.Port(),
		"MQTT_ALARM_TOPIC="+alarmTopic,
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		t.Fatalf("start server: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	client := &http.Client{Timeout: 5 * time.Second}
	base := "http://" + addr

	waitForOK(t, client, base+"/healthz", 10*time.Second)

	var health map[string]string
	getJSON(t, client, base+"/healthz", &health)
	if health["status"] != "ok" {
		t.Fatalf("healthz status=%q want=ok", health["status"])
	}

	var snap struct {
		Aggregates struct {
			AverageTemperature *float64 `json:"averageTemperature"`
			AverageFillLevel   *float64 `json:"averageFillLevel"`
			AverageAirTemp     *float64 `json:"averageAirTemp"`
			LastPrecipitation  *float64 `json:"lastPrecipitation"`
		} `json:"aggregates"`
		FailedSources []string `json:"failedSources"`
		Degraded      bool     `json:"degraded"`
	}
	getJSON(t, client, base+"/api/v1/dashboard", &snap)
	if snap.Degraded || len(snap.FailedSources) != 0 {
		t.Fatalf("dashboard degraded: %v", snap.FailedSources)
	}
	agg := snap.Aggregates
	if agg.AverageTemperature == nil || *agg.AverageTemperature != 21 {
		t.Fatalf("averageTemperature=%v want=21", agg.AverageTemperature)
	}
	if agg.AverageFillLevel == nil || *agg.AverageFillLevel != 50 {
		t.Fatalf("averageFillLevel=%v want=50", agg.AverageFillLevel)
	}
	if agg.AverageAirTemp == nil || *agg.AverageAirTemp != 19 {
		t.Fatalf("averageAirTemp=%v want=19", agg.AverageAirTemp)
	}
	if agg.LastPrecipitation == nil || *agg.LastPrecipitation != 2 {
		t.Fatalf("lastPrecipitation=%v want=2", agg.LastPrecipitation)
	}

	publisher := connectPublisher(t, brokerHost, brokerPort)
	waitForAlarm(t, client, publisher, base+"/api/v1/alarms", 10*time.Second)

	stopServer(t, cmd)
}

func startMosquitto(t *testing.T) (string, nat.Port) {
	t.Helper()

	ctx := context.Background()

	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2",
		ExposedPorts: []string{string(mqttPort)},
		Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
		WaitingFor:   wait.ForListeningPort(mqttPort).WithStartupTimeout(30 * time.Second),
	}

	c, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("start mosquitto container: %v", err)
	}
	t.Cleanup(func() {
		_ = c.Terminate(ctx)
	})

	host, err := c.Host(ctx)
	if err != nil {
		t.Fatalf("mosquitto host: %v", err)
	}
	port, err := c.MappedPort(ctx, mqttPort)
	if err != nil {
		t.Fatalf("mosquitto port: %v", err)
	}
	return host, port
}

func startBackend(t *testing.T) *httptest.Server {
	t.Helper()

	routes := map[string]string{
		"/bins":               `[{"id":"bin-1","fillLevel":40,"temperature":20},{"id":"bin-2","fillLevel":"60","temperature":22}]`,
		"/weather":            `[{"airTemp":18,"precipitation":0},{"airTemp":20,"precipitation":2}]`,
		"/pedestrian":         `[{"numVisitors":12,"lastEdit":"2024-05-01T10:15:00Z"}]`,
		"/bins/bin-1/status":  `{"id":"bin-1","fillLevel":40,"temperature":20}`,
		"/bins/bin-1/details": `{"id":"bin-1","fillLevel":40,"temperature":20,"status":"ok"}`,
		"/alarms":             `[]`,
	}

	mux := http.NewServeMux()
	for path, body := range routes {
		mux.HandleFunc("GET "+path, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(body))
		})
	}

	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func connectPublisher(t *testing.T, host string, port nat.Port) paho.Client {
	t.Helper()

	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%s", host, port.Port())).
		SetClientID("bindash-e2e-publisher")
	client := paho.NewClient(opts)
	if token := client.Connect(); !token.WaitTimeout(5*time.Second) || token.Error() != nil {
		t.Fatalf("publisher connect: %v", token.Error())
	}
	t.Cleanup(func() { client.Disconnect(250) })
	return client
}

// waitForAlarm republishes until the server has subscribed and stored the alarm.
func waitForAlarm(t *testing.T, client *http.Client, publisher paho.Client, url string, timeout time.Duration) {
	t.Helper()

	payload := `{"binId":"bin-1","type":"overflow","severity":"critical","message":"bin full","timestamp":"2024-05-01T10:20:00Z"}`

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		publisher.Publish(alarmTopic, 1, false, payload).WaitTimeout(time.Second)
		time.Sleep(250 * time.Millisecond)

		var alarms []struct {
			BinID    string `json:"binId"`
			Severity string `json:"severity"`
		}
		getJSON(t, client, url, &alarms)
		for _, a := range alarms {
			if a.BinID == "bin-1" && a.Severity == "critical" {
				return
			}
		}
	}
	t.Fatalf("alarm not stored after %s", timeout)
}

func getJSON(t *testing.T, client *http.Client, url string, out any) {
	t.Helper()

	resp, err := client.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s status=%d want=%d", url, resp.StatusCode, http.StatusOK)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func repoRootPath(t *testing.T) string {
	t.Helper()

	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}

	repo := filepath.Clean(filepath.Join(wd, repoRootRel))
	if _, err := os.Stat(filepath.Join(repo, "go.mod")); err != nil {
		t.Fatalf("repo root %q does not contain go.mod: %v", repo, err)
	}

	return repo
}

func buildBinary(t *testing.T, repoRoot string) string {
	t.Helper()

	out := filepath.Join(t.TempDir(), "bindash-server")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}

	return out
}

func pickFreeAddr(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen :0: %v", err)
	}
	defer ln.Close()

	return ln.Addr().String()
}

func waitForOK(t *testing.T, client *http.Client, url string, timeout time.Duration) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		resp, err := client.Get(url)
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	t.Fatalf("server not healthy after %s: %s", timeout, url)
}

func stopServer(t *testing.T, cmd *exec.Cmd) {
	t.Helper()

	_ = cmd.Process.Signal(syscall.SIGTERM)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("server did not exit in time")
	case err := <-done:
		if err != nil {
			var exitErr *exec.ExitError
			if errors.As(err, &exitErr) {
				t.Fatalf("server exited non-zero: %v", err)
			}
			t.Fatalf("server wait error: %v", err)
		}
	}
}
