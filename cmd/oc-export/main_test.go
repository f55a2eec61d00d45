package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/oc-marketplace-export/internal/testutil"
	"github.com/Sternrassler/oc-marketplace-export/pkg/logging"
	"github.com/Sternrassler/oc-marketplace-export/pkg/record"
	"github.com/fatih/color"
)

func init() {
	color.NoColor = true
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatalf("version error = %v", err)
	}
	if !strings.Contains(out, "oc-export version "+version) {
		t.Errorf("output = %q", out)
	}
}

func TestDownloadCommand(t *testing.T) {
	api := testutil.NewMockAPI()
	defer api.Close()
	mp := testutil.NewMockPortal()
	defer mp.Close()

	mp.AddUser("alice", "s3cret")
	mp.AddOrganization(testutil.Organization{ID: "org1", Name: "Org One", CoreAPIURL: api.URL()})
	api.SetList("products", record.FromPairs("ID", "p1", "OwnerID", "org1"))
	api.SetList("buyers", record.FromPairs("ID", "b1"))
	api.SetList("apiclients", record.FromPairs("ID", "c1", "ClientSecret", "hunter2"))

	// Password comes from the environment.
	t.Setenv(envPrefix+"_PASSWORD", "s3cret")

	output := filepath.Join(t.TempDir(), "seed.json")
	out, err := execute(t, "download",
		"-u", "alice",
		"-m", "org1",
		"-o", output,
		"--portal-url", mp.URL(),
		"--min-time", "0s",
		"--log-level", "error",
	)
	defer logging.Setup(logging.DefaultConfig())
	if err != nil {
		t.Fatalf("download error = %v\n%s", err, out)
	}

	if !strings.Contains(out, `✓ Found your Marketplace "org1". Beginning download.`) {
		t.Errorf("output missing start message:\n%s", out)
	}
	if !strings.Contains(out, "Found 1 Products") || !strings.Contains(out, "Wrote ") {
		t.Errorf("output missing progress:\n%s", out)
	}

	data, err := os.ReadFile(output)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	var doc struct {
		Meta struct {
			MarketplaceID string `json:"MarketplaceID"`
			Version       string `json:"Version"`
		} `json:"Meta"`
		Objects map[string][]map[string]any `json:"Objects"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if doc.Meta.MarketplaceID != "org1" || doc.Meta.Version != version {
		t.Errorf("Meta = %+v", doc.Meta)
	}
	if got := doc.Objects["Products"][0]["OwnerID"]; got != "{MARKETPLACE_ID}" {
		t.Errorf("product OwnerID = %v", got)
	}
	if got := doc.Objects["ApiClients"][0]["ClientSecret"]; got != "REDACTED BY OC SEEDING" {
		t.Errorf("api client secret = %v", got)
	}
}

func TestDownloadCommand_Failure(t *testing.T) {
	mp := testutil.NewMockPortal()
	defer mp.Close()

	output := filepath.Join(t.TempDir(), "seed.yml")
	out, err := execute(t, "download",
		"-u", "alice",
		"-p", "wrong",
		"-m", "org1",
		"-o", output,
		"--portal-url", mp.URL(),
		"--log-level", "error",
	)
	defer logging.Setup(logging.DefaultConfig())
	if err == nil {
		t.Fatal("download succeeded with bad credentials")
	}
	if !strings.Contains(out, `✗ Username "alice" and password were not valid`) {
		t.Errorf("output = %q", out)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Error("output written despite failure")
	}
}

func TestDownloadCommand_InvalidLogLevel(t *testing.T) {
	if _, err := execute(t, "download", "--log-level", "loud"); err == nil {
		t.Error("invalid log level accepted")
	}
}
