package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestInspectPrintsSessions(t *testing.T) {
	dir := t.TempDir()
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("001.json", `{"session": "nb-1", "cell_id": "aaaaaaaa", "cells": ["aaaaaaaa"], "nodes": ["x"]}`)
	write("002.json", `{"session": "nb-1", "cell_id": "bbbbbbbb", "cells": ["aaaaaaaa", "bbbbbbbb"],
		"links": {"aaaaaaaa": ["x"]}}`)

	out, err := runRoot(t, "inspect", dir)
	if err != nil {
		t.Fatalf("inspect failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Session nb-1") {
		t.Errorf("missing session header:\n%s", out)
	}
	if !strings.Contains(out, "Reports: 2 applied") {
		t.Errorf("missing tally:\n%s", out)
	}
}

func TestInspectFailsOnMalformedReports(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "001.json"), []byte("{"), 0o644); err != nil {
		t.Fatal(err)
	}

	_, err := runRoot(t, "inspect", dir)
	if err != errMalformedReports {
		t.Errorf("expected errMalformedReports, got %v", err)
	}
}

func TestInspectRequiresDirectory(t *testing.T) {
	if _, err := runRoot(t, "inspect"); err == nil {
		t.Error("expected an argument error")
	}
	if _, err := runRoot(t, "inspect", filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Error("expected a missing directory error")
	}
}
