package escrow

import "session-escrow-backend/internal/model"

func authorizeUser(caller, user string) error {
	if caller == "" || caller != user {
		return ErrNotAuthorized
	}
	return nil
}

func authorizeOracle(caller string, cfg *model.VaultConfig) error {
	if caller == "" || caller != cfg.Oracle {
		return ErrNotAuthorized
	}
	return nil
}

func authorizeAdmin(caller string, cfg *model.VaultConfig) error {
	if caller == "" || caller != cfg.Admin {
		return ErrNotAuthorized
	}
	return nil
}

// authorizeOwner checks that caller is the user who paid for b.
func authorizeOwner(caller string, b *model.Booking) error {
	if caller == "" || caller != b.User {
		return ErrNotAuthorized
	}
	return nil
}

// rejectCustody keeps the custody account out of bookings and mints. Custody
// may only hold deposits of pending bookings.
func rejectCustody(custody string, parties ...string) error {
	for _, p := range parties {
		if p == custody {
			return ErrNotAuthorized
		}
	}
	return nil
}
