package memstore

import (
	"testing"

	"github.com/Love-M-365/Clario/internal/store"
	"github.com/Love-M-365/Clario/internal/store/storetest"
)

func TestMemstoreCompliance(t *testing.T) {
	storetest.RunSuite(t, func(t *testing.T) store.Store {
		return New()
	})
}
