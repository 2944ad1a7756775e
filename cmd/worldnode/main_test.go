package main

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
)

const (
	subprocessEnv = "WORLDNODE_SUBPROCESS"
	configPathEnv = "WORLDNODE_CONFIG"
)

// TestWorldnodeFailsOnInvalidGovernanceConfig exercises the same
// subprocess-exec pattern the teacher's consensusd test used: main() must
// fail closed, with a non-zero exit and a logged reason, rather than start
// serving on a governance configuration ValidateConfig rejects.
func TestWorldnodeFailsOnInvalidGovernanceConfig(t *testing.T) {
	if os.Getenv(subprocessEnv) == "1" {
		os.Args = []string{"worldnode", "-config", os.Getenv(configPathEnv)}
		main()
		return
	}

	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.toml")
	contents := fmt.Sprintf(`ListenAddress = "127.0.0.1:0"
RPCAddress = "127.0.0.1:0"
DataDir = %q
ValidatorKey = "aa"
WorldID = "test-world"

[Global.Governance]
QuorumBPS = 5000
PassThresholdBPS = 6000
VotingPeriodSecs = 3600

[Global.Slashing]
MinWindowSecs = 60
MaxWindowSecs = 3600

[Global.Mempool]
MaxBytes = 1048576

[Global.Blocks]
MaxTxs = 1024
`, dir)
	if err := os.WriteFile(cfgPath, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cmd := exec.Command(os.Args[0], "-test.run", "^TestWorldnodeFailsOnInvalidGovernanceConfig$")
	cmd.Env = append(os.Environ(), subprocessEnv+"=1", configPathEnv+"="+cfgPath)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output
	err := cmd.Run()
	if err == nil {
		t.Fatalf("expected worldnode to exit with error, output=%s", output.String())
	}
	if exitErr, ok := err.(*exec.ExitError); !ok || exitErr.ExitCode() == 0 {
		t.Fatalf("unexpected error type or exit code: %v", err)
	}
	if !strings.Contains(output.String(), "invalid configuration") {
		t.Fatalf("expected output to mention invalid configuration, got %s", output.String())
	}
}
