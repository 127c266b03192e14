package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"studioprov/internal/controlplane"
	"studioprov/internal/controlplane/fake"
	"studioprov/internal/waiter"
)

// instantClock makes the waiter primitives run without real delays.
type instantClock struct{}

func (instantClock) Now() time.Time        { return time.Unix(0, 0) }
func (instantClock) Sleep(_ time.Duration) {}

func testWait() waiter.Config {
	return waiter.Config{Clock: instantClock{}}
}

func seedDomain(t *testing.T, cp *fake.ControlPlane) string {
	t.Helper()
	out, err := cp.CreateDomain(context.Background(), controlplane.CreateDomainInput{
		DomainName: "workshop",
		VPCID:      "vpc-1",
		SubnetIDs:  []string{"subnet-1"},
	})
	require.NoError(t, err)
	return out.DomainID
}
