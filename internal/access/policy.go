// Package access decides which equipment a user may see and edit.
package access

import (
	"github.com/ukydev/fleet-maintenance/internal/models"
	"go.mongodb.org/mongo-driver/bson"
)

// Policy scopes equipment to a viewer. Filter is pushed down into equipment
// queries and feeds; Visible is the same rule evaluated in memory.
type Policy interface {
	Filter(viewer *models.User) bson.M
	Visible(viewer *models.User, eq models.Equipment) bool
	CanEdit(viewer *models.User, eq models.Equipment) bool
	// CanManage reports whether viewer may create or edit equipment on shipID.
	CanManage(viewer *models.User, shipID string) bool
}

// RepairScope scopes the repair log to a viewer the way Policy scopes
// equipment.
type RepairScope interface {
	RepairFilter(viewer *models.User) bson.M
	RepairVisible(viewer *models.User, r models.Repair) bool
}

// RolePolicy implements the fleet roles:
//   - main-admin sees and edits everything
//   - ship-admin sees and edits equipment of their ship
//   - crew see and edit equipment they are responsible for
type RolePolicy struct{}

var matchNothing = bson.M{"_id": bson.M{"$in": bson.A{}}}

// Filter returns the equipment query for viewer.
func (RolePolicy) Filter(viewer *models.User) bson.M {
	if viewer == nil {
		return matchNothing
	}
	switch viewer.Role {
	case models.RoleMainAdmin:
		return bson.M{}
	case models.RoleShipAdmin:
		if viewer.ShipID == "" {
			return matchNothing
		}
		return bson.M{"shipId": viewer.ShipID}
	case models.RoleCrew:
		ids := viewer.Identities()
		if len(ids) == 0 {
			return matchNothing
		}
		in := make(bson.A, 0, len(ids))
		for _, id := range ids {
			in = append(in, id)
		}
		return bson.M{"responsible": bson.M{"$in": in}}
	default:
		return matchNothing
	}
}

// Visible reports whether viewer may see eq.
func (p RolePolicy) Visible(viewer *models.User, eq models.Equipment) bool {
	if viewer == nil {
		return false
	}
	switch viewer.Role {
	case models.RoleMainAdmin:
		return true
	case models.RoleShipAdmin:
		return viewer.ShipID != "" && eq.ShipID == viewer.ShipID
	case models.RoleCrew:
		return responsible(viewer, eq)
	default:
		return false
	}
}

// CanEdit reports whether viewer may change eq or its maintenance records.
// Ship admins may also edit equipment assigned to them on other ships.
func (p RolePolicy) CanEdit(viewer *models.User, eq models.Equipment) bool {
	if viewer == nil || !models.IsValidRole(viewer.Role) {
		return false
	}
	if viewer.Role == models.RoleMainAdmin {
		return true
	}
	if viewer.Role == models.RoleShipAdmin && viewer.ShipID != "" && eq.ShipID == viewer.ShipID {
		return true
	}
	return responsible(viewer, eq)
}

// CanManage allows main admins on every ship and ship admins on their own.
// Crew never manage equipment.
func (RolePolicy) CanManage(viewer *models.User, shipID string) bool {
	if viewer == nil {
		return false
	}
	switch viewer.Role {
	case models.RoleMainAdmin:
		return true
	case models.RoleShipAdmin:
		return viewer.ShipID != "" && shipID == viewer.ShipID
	default:
		return false
	}
}

// RepairFilter returns the repair query for viewer: everything for main
// admins, the own ship for ship admins, own reports for crew.
func (RolePolicy) RepairFilter(viewer *models.User) bson.M {
	if viewer == nil {
		return matchNothing
	}
	switch viewer.Role {
	case models.RoleMainAdmin:
		return bson.M{}
	case models.RoleShipAdmin:
		if viewer.ShipID == "" {
			return matchNothing
		}
		return bson.M{"shipId": viewer.ShipID}
	case models.RoleCrew:
		if viewer.ID == "" {
			return matchNothing
		}
		return bson.M{"createdBy": string(viewer.ID)}
	default:
		return matchNothing
	}
}

// RepairVisible is RepairFilter evaluated in memory.
func (RolePolicy) RepairVisible(viewer *models.User, r models.Repair) bool {
	if viewer == nil {
		return false
	}
	switch viewer.Role {
	case models.RoleMainAdmin:
		return true
	case models.RoleShipAdmin:
		return viewer.ShipID != "" && r.ShipID == viewer.ShipID
	case models.RoleCrew:
		return viewer.ID != "" && r.CreatedBy == string(viewer.ID)
	default:
		return false
	}
}

func responsible(viewer *models.User, eq models.Equipment) bool {
	if eq.Responsible == "" {
		return false
	}
	for _, id := range viewer.Identities() {
		if id == eq.Responsible {
			return true
		}
	}
	return false
}

// FilterVisible keeps the equipment viewer may see.
func FilterVisible(p Policy, viewer *models.User, list []models.Equipment) []models.Equipment {
	out := make([]models.Equipment, 0, len(list))
	for _, eq := range list {
		if p.Visible(viewer, eq) {
			out = append(out, eq)
		}
	}
	return out
}
