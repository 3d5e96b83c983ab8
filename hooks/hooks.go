// Package hooks defines lightweight callbacks for high-signal cache events.
package hooks

// Hooks lightweight callbacks for high-signal events.
// Implementations MUST be cheap and non-blocking.
// The regions and access strategies call them on hot paths.
type Hooks interface {
	// A region entry was deleted on read.
	// reason ∈ {"corrupt", "epoch_mismatch"}
	SelfHealEntry(storageKey, reason string)

	// Provider returned ok=false on Set (backpressure/eviction).
	ProviderSetRejected(storageKey string)

	// GenStore errors while reading or bumping a region epoch.
	EpochError(region string, err error)

	// A region was built by the factory.
	RegionBuilt(region, kind string)

	// Region read outcomes, per access strategy Get.
	Hit(region string)
	Miss(region string)

	// An access strategy wrote an item into the region.
	Put(region string)

	// PutFromLoad (or AfterInsert/AfterUpdate) declined to write.
	// reason ∈ {"soft_locked", "minimal_put", "present", "version", "concurrent_lock"}
	PutRejected(region, reason string)

	// A soft lock was released that the lock table no longer knows about
	// (already released, expired, or the region was cleared meanwhile).
	SoftLockUnknown(region string)
}

// Nop is the default no-op.
type Nop struct{}

func (Nop) SelfHealEntry(string, string) {}
func (Nop) ProviderSetRejected(string)   {}
func (Nop) EpochError(string, error)     {}
func (Nop) RegionBuilt(string, string)   {}
func (Nop) Hit(string)                   {}
func (Nop) Miss(string)                  {}
func (Nop) Put(string)                   {}
func (Nop) PutRejected(string, string)   {}
func (Nop) SoftLockUnknown(string)       {}

// OrNop returns h, or Nop when h is nil.
func OrNop(h Hooks) Hooks {
	if h == nil {
		return Nop{}
	}
	return h
}
