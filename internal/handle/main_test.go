package handle_test

import (
	"os"
	"testing"

	"github.com/temirov/procwatch/internal/testsupport"
)

func TestMain(m *testing.M) {
	testsupport.RunHelperIfRequested()
	os.Exit(m.Run())
}
