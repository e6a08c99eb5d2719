package repository

import "github.com/google/uuid"

// isUUID guards uuid-typed columns so malformed ids read as "not found"
// instead of a cast error from PostgreSQL.
func isUUID(id string) bool {
	return uuid.Validate(id) == nil
}
