package main

import "testing"

func TestBuildRootCmdRegistersSubcommands(t *testing.T) {
	root := buildRootCmd()
	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"serve", "config"} {
		if !names[want] {
			t.Fatalf("expected root command to register %q, got %v", want, names)
		}
	}
}

func TestBuildServeCmdDefaultsAddr(t *testing.T) {
	cmd := buildServeCmd()
	addr, err := cmd.Flags().GetString("addr")
	if err != nil {
		t.Fatalf("GetString: %v", err)
	}
	if addr == "" {
		t.Fatal("expected a non-empty default addr")
	}
}
