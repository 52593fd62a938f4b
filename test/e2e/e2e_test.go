package e2e

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"gopkg.in/yaml.v3"
)

const (
	binaryName = "firmup"
)

var binaryPath string

// TestMain builds the binary before running tests
func TestMain(m *testing.M) {
	// Build the binary
	cmd := exec.Command("go", "build", "-o", binaryName, "../../cmd/firmup")
	if err := cmd.Run(); err != nil {
		panic("failed to build binary: " + err.Error())
	}

	// Get absolute path to binary
	binaryPath, _ = filepath.Abs(binaryName)

	// Run tests
	code := m.Run()

	// Cleanup
	os.Remove(binaryName)

	os.Exit(code)
}

const deviceManifest = `[MODEL]
model = Rider15neo

[Firmware]
Version = 1.0
Size = 8

[GPS]
Version = 2.3
Size = 3

[Maps]
Version = 2019
Size = 0
`

const releaseManifest = `[Firmware]
Name = System/firmware.bin
Version = 1.1
Size = 8

[GPS]
Name = System/gps.bin
Version = 2.3
Size = 3

[Maps]
Name = Map/maps.dat
Version = 2024
Size = 0
`

// testEnv is a mounted device, a release server and an isolated config.
type testEnv struct {
	device   string
	cacheDir string
	env      []string

	mu       sync.Mutex
	requests []string
}

// setupTestEnv creates a device directory, serves files from the release
// map and writes a config pointing at the server.
func setupTestEnv(t *testing.T, manifest string, release map[string]string) *testEnv {
	t.Helper()

	e := &testEnv{
		device:   t.TempDir(),
		cacheDir: t.TempDir(),
	}

	if err := os.MkdirAll(filepath.Join(e.device, "System"), 0755); err != nil {
		t.Fatalf("failed to create device: %v", err)
	}
	if err := os.WriteFile(filepath.Join(e.device, "System", "device.txt"), []byte(manifest), 0644); err != nil {
		t.Fatalf("failed to write device manifest: %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.requests = append(e.requests, r.URL.Path)
		e.mu.Unlock()
		name := strings.TrimPrefix(r.URL.Path, "/Device/Rider15neo/")
		body, ok := release[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)

	configDir := t.TempDir()
	configFile := filepath.Join(configDir, "config.yaml")
	config := "version: 1\n" +
		"url_template: \"" + server.URL + "/Device/{model}/{file}\"\n" +
		"http:\n  timeout: 5s\n  retries: 0\n"
	if err := os.WriteFile(configFile, []byte(config), 0644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	e.env = append(os.Environ(),
		"FIRMUP_CONFIG="+configFile,
		"XDG_CACHE_HOME="+e.cacheDir,
		"XDG_CONFIG_HOME="+configDir,
	)
	return e
}

// runFirmup executes the firmup binary with given arguments
func (e *testEnv) runFirmup(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, args...)
	cmd.Env = e.env
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// served returns the paths requested from the release server so far.
func (e *testEnv) served() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.requests...)
}

func (e *testEnv) readDevice(t *testing.T, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(e.device, filepath.FromSlash(name)))
	if err != nil {
		t.Fatalf("failed to read %s from device: %v", name, err)
	}
	return string(data)
}

func defaultRelease() map[string]string {
	return map[string]string{
		"release.ini":         releaseManifest,
		"update.ini":          releaseManifest,
		"System/firmware.bin": "FIRMWARE",
	}
}

func TestUpdateCommand(t *testing.T) {
	e := setupTestEnv(t, deviceManifest, defaultRelease())
	if err := os.WriteFile(filepath.Join(e.device, "System", "firmware.bin"), []byte("OLDFW"), 0644); err != nil {
		t.Fatal(err)
	}

	stdout, stderr, err := e.runFirmup(t, "", "update", e.device, "--yes")
	if err != nil {
		t.Fatalf("update failed: %v\nstdout: %s\nstderr: %s", err, stdout, stderr)
	}

	if got := e.readDevice(t, "System/firmware.bin"); got != "FIRMWARE" {
		t.Errorf("firmware.bin = %q, want FIRMWARE", got)
	}
	if got := e.readDevice(t, "update.ini"); got != releaseManifest {
		t.Errorf("update.ini = %q", got)
	}
	if _, err := os.Stat(filepath.Join(e.device, "System", "gps.bin")); !os.IsNotExist(err) {
		t.Error("current component must not be written")
	}
	if _, err := os.Stat(filepath.Join(e.device, "Map")); !os.IsNotExist(err) {
		t.Error("zero size component must not be written")
	}

	if !strings.Contains(stdout, "unplug device to start update") {
		t.Errorf("stdout missing final message:\n%s", stdout)
	}

	// The replaced firmware was backed up
	backups, _ := filepath.Glob(filepath.Join(e.cacheDir, "firmup", "backups", "*", "files", "System", "firmware.bin"))
	if len(backups) != 1 {
		t.Fatalf("expected one backed up firmware.bin, found %v", backups)
	}
	saved, _ := os.ReadFile(backups[0])
	if string(saved) != "OLDFW" {
		t.Errorf("backup content = %q, want OLDFW", saved)
	}
}

func TestUpdateCommandWithoutTerminal(t *testing.T) {
	e := setupTestEnv(t, deviceManifest, defaultRelease())

	// stdin is a pipe, so firmup must refuse to prompt.
	stdout, stderr, err := e.runFirmup(t, "y\n", "update", e.device)
	if err == nil {
		t.Fatal("expected non-zero exit without a terminal")
	}
	if !strings.Contains(stderr, "--yes") {
		t.Errorf("stderr should suggest --yes:\n%s", stderr)
	}
	if strings.Contains(stdout, "proceed with update?") {
		t.Error("prompt must not be shown without a terminal")
	}
	if _, err := os.Stat(filepath.Join(e.device, "update.ini")); !os.IsNotExist(err) {
		t.Error("unconfirmed update must not write files")
	}
	for _, r := range e.served() {
		if !strings.HasSuffix(r, "/release.ini") {
			t.Errorf("unexpected payload request %s", r)
		}
	}
}

func TestUpdateCommandUpToDate(t *testing.T) {
	release := defaultRelease()
	release["release.ini"] = strings.Replace(releaseManifest, "Version = 1.1", "Version = 1.0", 1)
	e := setupTestEnv(t, deviceManifest, release)

	stdout, _, err := e.runFirmup(t, "", "update", e.device)
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !strings.Contains(stdout, "nothing to do") {
		t.Errorf("stdout = %s", stdout)
	}
	if strings.Contains(stdout, "proceed with update?") {
		t.Error("no prompt expected when nothing changes")
	}
}

func TestUpdateCommandSizeMismatch(t *testing.T) {
	release := defaultRelease()
	release["System/firmware.bin"] = "SHORT"
	e := setupTestEnv(t, deviceManifest, release)

	_, stderr, err := e.runFirmup(t, "", "update", e.device, "--yes", "--no-backup")
	if err == nil {
		t.Fatal("expected non-zero exit for size mismatch")
	}
	if !strings.Contains(stderr, "non matching size") {
		t.Errorf("stderr = %s", stderr)
	}
	if _, err := os.Stat(filepath.Join(e.device, "System", "firmware.bin")); !os.IsNotExist(err) {
		t.Error("mismatched payload must not be written")
	}
	if _, err := os.Stat(filepath.Join(e.device, "update.ini")); !os.IsNotExist(err) {
		t.Error("refresh must not run after an abort")
	}
}

func TestUpdateCommandUnsupportedDevice(t *testing.T) {
	manifest := strings.Replace(deviceManifest, "Rider15neo", "Rider420", 1)
	e := setupTestEnv(t, manifest, defaultRelease())

	_, stderr, err := e.runFirmup(t, "", "update", e.device, "--yes")
	if err == nil {
		t.Fatal("expected failure for unsupported device")
	}
	if !strings.Contains(stderr, "not supported") {
		t.Errorf("stderr = %s", stderr)
	}
}

func TestUpdateCommandUnknownSection(t *testing.T) {
	release := defaultRelease()
	release["release.ini"] = releaseManifest + "\n[NewSensor]\nName = System/sensor.bin\nVersion = 1\nSize = 50\n"
	e := setupTestEnv(t, deviceManifest, release)

	_, stderr, err := e.runFirmup(t, "", "update", e.device, "--yes")
	if err == nil {
		t.Fatal("expected failure for unknown section")
	}
	if !strings.Contains(stderr, "NewSensor") {
		t.Errorf("stderr = %s", stderr)
	}
	if requests := e.served(); len(requests) != 1 {
		t.Errorf("requests = %v, want only the release manifest", requests)
	}
}

func TestPlanCommand(t *testing.T) {
	e := setupTestEnv(t, deviceManifest, defaultRelease())

	stdout, _, err := e.runFirmup(t, "", "plan", e.device, "-o", "json")
	if err != nil {
		t.Fatalf("plan failed: %v", err)
	}

	var result struct {
		Model string `json:"model"`
		Plan  struct {
			Actions []struct {
				File string `json:"file"`
			} `json:"actions"`
		} `json:"plan"`
	}
	if err := json.Unmarshal([]byte(stdout), &result); err != nil {
		t.Fatalf("invalid JSON output: %v\n%s", err, stdout)
	}
	if result.Model != "Rider15neo" || len(result.Plan.Actions) != 2 {
		t.Errorf("plan = %+v", result)
	}
	if _, err := os.Stat(filepath.Join(e.device, "update.ini")); !os.IsNotExist(err) {
		t.Error("plan must not write to the device")
	}
}

func TestStatusCommand(t *testing.T) {
	e := setupTestEnv(t, deviceManifest, nil)

	stdout, _, err := e.runFirmup(t, "", "status", e.device, "-o", "yaml")
	if err != nil {
		t.Fatalf("status failed: %v", err)
	}

	var status struct {
		Model      string `yaml:"model"`
		Supported  bool   `yaml:"supported"`
		Components []struct {
			Section string `yaml:"section"`
		} `yaml:"components"`
	}
	if err := yaml.Unmarshal([]byte(stdout), &status); err != nil {
		t.Fatalf("invalid YAML output: %v\n%s", err, stdout)
	}
	if status.Model != "Rider15neo" || !status.Supported || len(status.Components) != 3 {
		t.Errorf("status = %+v", status)
	}
	if requests := e.served(); len(requests) != 0 {
		t.Errorf("status made network requests: %v", requests)
	}
}

func TestBackupRestore(t *testing.T) {
	e := setupTestEnv(t, deviceManifest, defaultRelease())
	if err := os.WriteFile(filepath.Join(e.device, "System", "firmware.bin"), []byte("OLDFW"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, stderr, err := e.runFirmup(t, "", "update", e.device, "--yes"); err != nil {
		t.Fatalf("update failed: %v\n%s", err, stderr)
	}

	stdout, _, err := e.runFirmup(t, "", "backup", "list", "-o", "json")
	if err != nil {
		t.Fatalf("backup list failed: %v", err)
	}
	var backups []struct {
		ID    string `json:"id"`
		Files int    `json:"files"`
	}
	if err := json.Unmarshal([]byte(stdout), &backups); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, stdout)
	}
	if len(backups) != 1 || backups[0].Files != 2 {
		t.Fatalf("backups = %+v", backups)
	}

	if _, stderr, err := e.runFirmup(t, "", "backup", "restore", "latest", e.device, "--yes"); err != nil {
		t.Fatalf("restore failed: %v\n%s", err, stderr)
	}
	if got := e.readDevice(t, "System/firmware.bin"); got != "OLDFW" {
		t.Errorf("firmware.bin after restore = %q, want OLDFW", got)
	}
}

func TestValidation(t *testing.T) {
	e := setupTestEnv(t, deviceManifest, nil)

	tests := []struct {
		name string
		args []string
	}{
		{"missing device argument", []string{"update"}},
		{"device does not exist", []string{"status", filepath.Join(e.device, "missing")}},
		{"bad output format", []string{"status", e.device, "-o", "xml"}},
		{"verbose and quiet", []string{"status", e.device, "-v", "-q"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := e.runFirmup(t, "", tt.args...); err == nil {
				t.Errorf("expected non-zero exit for %v", tt.args)
			}
		})
	}
}

func TestVersionCommand(t *testing.T) {
	e := setupTestEnv(t, deviceManifest, nil)

	stdout, _, err := e.runFirmup(t, "", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	if !strings.Contains(stdout, "firmup version") {
		t.Errorf("stdout = %s", stdout)
	}
}
