package common

import (
	"bytes"
	"flag"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dtnitsch/linkmeta/models"
	"github.com/urfave/cli/v2"
)

func TestFilterProperties(t *testing.T) {
	props := []models.Property{
		{Name: "title", Value: "活着"},
		{Name: "author", Value: []string{"余华"}},
		{Name: "rating", Value: 9.4},
	}
	tests := []struct {
		fields string
		want   []string
	}{
		{"", []string{"title", "author", "rating"}},
		{"rating, title", []string{"title", "rating"}},
		{"isbn", []string{}},
		{" , ", []string{"title", "author", "rating"}},
		{",,", []string{"title", "author", "rating"}},
		{"author,", []string{"author"}},
	}
	for _, tt := range tests {
		t.Run(tt.fields, func(t *testing.T) {
			got := FilterProperties(props, tt.fields)
			if len(got) != len(tt.want) {
				t.Fatalf("FilterProperties(%q) = %d props, want %d", tt.fields, len(got), len(tt.want))
			}
			for i, name := range tt.want {
				if got[i].Name != name {
					t.Errorf("prop %d = %q, want %q", i, got[i].Name, name)
				}
			}
		})
	}
}

func TestPrintJSON(t *testing.T) {
	var buf bytes.Buffer
	props := []models.Property{{Name: "rating", Type: models.PropertyTypeNumber, Value: math.NaN()}, {Name: "link", Value: "https://a.b/?x=1&y=2"}}
	if err := PrintJSON(&buf, props); err != nil {
		t.Fatalf("PrintJSON() error = %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"value": null`) {
		t.Errorf("NaN not written as null:\n%s", out)
	}
	if !strings.Contains(out, "x=1&y=2") {
		t.Errorf("HTML escaping applied:\n%s", out)
	}
}

func TestSetup(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "linkmeta.yaml")
	if err := os.WriteFile(cfgPath, []byte("db_path: from-config.db\ntimezone: Asia/Shanghai\n"), 0644); err != nil {
		t.Fatal(err)
	}
	logPath := filepath.Join(dir, "logs", "linkmeta.log")

	set := flag.NewFlagSet("test", flag.ContinueOnError)
	set.String("config", cfgPath, "")
	set.String("db", filepath.Join(dir, "override.db"), "")
	set.String("assets-dir", "", "")
	set.Bool("quiet", false, "")
	set.Bool("verbose", false, "")
	set.String("log-file", logPath, "")
	c := cli.NewContext(cli.NewApp(), set, nil)

	env, err := Setup(c)
	if err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if env.Config.DBPath != filepath.Join(dir, "override.db") {
		t.Errorf("DBPath = %q, want the --db override", env.Config.DBPath)
	}
	if env.Config.AssetsDir != models.DefaultAssetsDir {
		t.Errorf("AssetsDir = %q", env.Config.AssetsDir)
	}
	loc, err := env.Config.Location()
	if err != nil || loc.String() != "Asia/Shanghai" {
		t.Errorf("Location() = %v, %v", loc, err)
	}

	if _, err := env.OpenDB(); err != nil {
		t.Fatalf("OpenDB() error = %v", err)
	}
	env.Logger.Info("hello")
	env.Close()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file not written: %v", err)
	}
	if !strings.Contains(string(data), `"msg":"hello"`) {
		t.Errorf("log file = %s", data)
	}
}
