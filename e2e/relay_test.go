//go:build e2e

package e2e

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const repoRootRel = ".."   // relative to ./e2e
const mainPkgRel = "./cmd" // main.go lives in cmd/

const mqttPort = nat.Port("1883/tcp")

const garageLine = `{"time":"2018-08-14 17:10:20","id":"5","model":"TX29","battery":"OK","newbattery":false,"temperature_C":21.5}`

func TestRelay_PublishesToMQTT(t *testing.T) {
	repoRoot := repoRootPath(t)
	host, port := startMosquitto(t)

	received := subscribe(t, host, port, "lacrosse/#")

	bin := buildBinary(t, repoRoot)
	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"APP_ENV=dev",
		"LOG_LEVEL=debug",
		"PUBLISH_SINK=mqtt",
		"MQTT_BROKER="+host,
		fmt.Sprintf("MQTT_PORT=%d", port),
		"MQTT_CLIENT_ID=lacrosse-relay-e2e",
		"LOCATIONS_FILE="+writeLocations(t),
	)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatalf("stdin pipe: %v", err)
	}
	if err := cmd.Start(); err != nil {
		t.Fatalf("start relay: %v", err)
	}
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	})

	// Readings sent before the relay reaches the broker are dropped, so keep
	// feeding the same line until one arrives.
	var msg mqtt.Message
	deadline := time.After(20 * time.Second)
	tick := time.NewTicker(250 * time.Millisecond)
	defer tick.Stop()
recv:
	for {
		select {
		case msg = <-received:
			break recv
		case <-tick.C:
			if _, err := io.WriteString(stdin, garageLine+"\n"); err != nil {
				t.Fatalf("write stdin: %v", err)
			}
		case <-deadline:
			t.Fatal("no reading published to the broker")
		}
	}

	if msg.Topic() != "lacrosse/Garage" {
		t.Errorf("topic = %q, want lacrosse/Garage", msg.Topic())
	}
	var body struct {
		DeviceType string         `json:"deviceType"`
		Data       map[string]any `json:"data"`
	}
	if err := json.Unmarshal(msg.Payload(), &body); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if body.DeviceType != "LACROSSE_TECHNOLOGY_TX" {
		t.Errorf("deviceType = %q", body.DeviceType)
	}
	if body.Data["location"] != "Garage" || body.Data["temperature"] != 21.5 {
		t.Errorf("data = %v", body.Data)
	}

	// EOF on stdin ends the relay with a zero exit.
	_ = stdin.Close()
	waitExit(t, cmd, 0)
}

func TestRelay_MissingDeviceTokenExitsNonZero(t *testing.T) {
	bin := buildBinary(t, repoRootPath(t))

	cmd := exec.Command(bin)
	cmd.Env = append(os.Environ(),
		"PUBLISH_SINK=http",
		"DEVICE_TOKEN=",
		"LOCATIONS_FILE="+writeLocations(t),
	)
	if err := cmd.Start(); err != nil {
		t.Fatalf("start relay: %v", err)
	}
	waitExit(t, cmd, 1)
}

func startMosquitto(t *testing.T) (string, int) {
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
		t.Fatalf("container host: %v", err)
	}
	mapped, err := c.MappedPort(ctx, mqttPort)
	if err != nil {
		t.Fatalf("mapped port: %v", err)
	}
	return host, mapped.Int()
}

func subscribe(t *testing.T, host string, port int, topic string) <-chan mqtt.Message {
	t.Helper()

	out := make(chan mqtt.Message, 16)
	opts := mqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", host, port)).
		SetClientID("lacrosse-relay-e2e-sub")
	client := mqtt.NewClient(opts)

	if token := client.Connect(); !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("subscriber connect: %v", token.Error())
	}
	t.Cleanup(func() { client.Disconnect(250) })

	token := client.Subscribe(topic, 1, func(_ mqtt.Client, m mqtt.Message) {
		select {
		case out <- m:
		default:
		}
	})
	if !token.WaitTimeout(10*time.Second) || token.Error() != nil {
		t.Fatalf("subscribe %s: %v", topic, token.Error())
	}
	return out
}

func writeLocations(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	doc := `{"locations":[{"deviceId":"5","name":"Garage"}]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatalf("write locations: %v", err)
	}
	return path
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

	out := filepath.Join(t.TempDir(), "lacrosse-relay")

	build := exec.Command("go", "build", "-o", out, mainPkgRel)
	build.Dir = repoRoot
	build.Env = os.Environ()

	b, err := build.CombinedOutput()
	if err != nil {
		t.Fatalf("go build failed: %v\n%s", err, string(b))
	}

	return out
}

func waitExit(t *testing.T, cmd *exec.Cmd, wantCode int) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case <-ctx.Done():
		_ = cmd.Process.Kill()
		t.Fatalf("relay did not exit in time")
	case err := <-done:
		code := 0
		if err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				t.Fatalf("relay wait error: %v", err)
			}
			code = exitErr.ExitCode()
		}
		if code != wantCode {
			t.Fatalf("relay exit code = %d, want %d", code, wantCode)
		}
	}
}
