package cli_test

import (
	"os"
	"testing"

	"github.com/temirov/procwatch/internal/testsupport"
)

func TestMain(testMain *testing.M) {
	testsupport.RunHelperIfRequested()
	os.Exit(testMain.Run())
}
