package cluster

// CheckReplicaSetStatus labels each of members' Mode in place from the live
// group-replication state in liveByUUID, and returns the quorum verdict.
//
// Declared members absent from liveByUUID become Unavailable. Declared
// members Online with role Primary become ReadWrite (multi-primary
// configurations are downgraded: every Online+Primary member becomes
// ReadWrite, none is treated as more authoritative than another). Declared
// members Online in any other role become ReadOnly. Any other live state
// becomes Unavailable and does not count toward quorum. Live members whose
// UUID is not in the declared set are ignored entirely.
func CheckReplicaSetStatus(members []ManagedInstance, liveByUUID map[string]GroupMember) ReplicaSetStatus {
	expected := len(members)
	online := 0
	primaryFound := false

	for i := range members {
		m := &members[i]
		live, ok := liveByUUID[m.ServerUUID]
		if !ok {
			m.Mode = ModeUnavailable
			continue
		}

		if live.State != StateOnline {
			m.Mode = ModeUnavailable
			continue
		}

		if live.Role == RolePrimary {
			m.Mode = ModeReadWrite
			primaryFound = true
		} else {
			m.Mode = ModeReadOnly
		}
		online++
	}

	if online <= expected/2 {
		return StatusUnavailable
	}
	if primaryFound {
		return StatusAvailableWritable
	}
	return StatusAvailableReadOnly
}
