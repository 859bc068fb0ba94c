package spatial

// EntitySource is the read-only view of the authoritative simulation that
// the populate pass walks. It is only ever called from the goroutine that
// calls Cache.Update, which must be the simulation's own update goroutine.
//
// Each Visit method yields a freshly copied snapshot for every entity of that
// kind inside area (a zero Bounds means the whole region). Implementations
// copy values; they must not hand out anything that aliases live state.
type EntitySource interface {
	// Loaded reports whether the region can currently supply entities.
	// An unloaded source yields an empty buffer.
	Loaded() bool

	VisitCreatures(area Bounds, fn func(CreatureSnapshot))
	VisitPlayers(area Bounds, fn func(PlayerSnapshot))
	VisitObjects(area Bounds, fn func(ObjectSnapshot))
	VisitTriggers(area Bounds, fn func(TriggerSnapshot))
	VisitEffects(area Bounds, fn func(EffectSnapshot))
}
