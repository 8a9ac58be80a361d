package memory

import (
	"testing"

	"vaultcore/internal/infra/persistence/storetest"
)

func TestStoreContract(t *testing.T) {
	storetest.Exercise(t, NewStore())
}
