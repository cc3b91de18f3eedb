package permissions

import "github.com/Glorc12/AirConditionerCompany/internal/models"

type Capability string

const (
	ViewUsers         Capability = "viewUsers"
	AddUsers          Capability = "addUsers"
	DeleteUsers       Capability = "deleteUsers"
	ViewRequests      Capability = "viewRequests"
	EditRequests      Capability = "editRequests"
	DeleteRequests    Capability = "deleteRequests"
	ViewStatistics    Capability = "viewStatistics"
	CreateRequest     Capability = "createRequest"
	AssignSpecialists Capability = "assignSpecialists"
	ExtendDeadline    Capability = "extendDeadline"
)

var All = []Capability{
	ViewUsers, AddUsers, DeleteUsers,
	ViewRequests, EditRequests, DeleteRequests,
	ViewStatistics, CreateRequest, AssignSpecialists, ExtendDeadline,
}

type CapabilitySet struct {
	ViewUsers         bool `json:"viewUsers"`
	AddUsers          bool `json:"addUsers"`
	DeleteUsers       bool `json:"deleteUsers"`
	ViewRequests      bool `json:"viewRequests"`
	EditRequests      bool `json:"editRequests"`
	DeleteRequests    bool `json:"deleteRequests"`
	ViewStatistics    bool `json:"viewStatistics"`
	CreateRequest     bool `json:"createRequest"`
	AssignSpecialists bool `json:"assignSpecialists"`
	ExtendDeadline    bool `json:"extendDeadline"`
}

// For is pure and total. Roles outside the canonical enum get an empty set.
func For(role models.Role) CapabilitySet {
	switch role {
	case models.RoleAdmin:
		return CapabilitySet{
			ViewUsers: true, AddUsers: true, DeleteUsers: true,
			ViewRequests: true, EditRequests: true, DeleteRequests: true,
			ViewStatistics: true, CreateRequest: true, AssignSpecialists: true, ExtendDeadline: true,
		}
	case models.RoleQualityManager:
		return CapabilitySet{
			ViewUsers:    true,
			ViewRequests: true, EditRequests: true, DeleteRequests: true,
			ViewStatistics: true, CreateRequest: true, AssignSpecialists: true, ExtendDeadline: true,
		}
	case models.RoleOperator:
		return CapabilitySet{
			ViewRequests: true, EditRequests: true,
			ViewStatistics: true, CreateRequest: true,
		}
	case models.RoleSpecialist:
		return CapabilitySet{
			ViewRequests: true, EditRequests: true,
			CreateRequest: true,
		}
	case models.RoleCustomer:
		return CapabilitySet{
			ViewRequests:  true,
			CreateRequest: true,
		}
	default:
		return CapabilitySet{}
	}
}

func (c CapabilitySet) Has(capability Capability) bool {
	switch capability {
	case ViewUsers:
		return c.ViewUsers
	case AddUsers:
		return c.AddUsers
	case DeleteUsers:
		return c.DeleteUsers
	case ViewRequests:
		return c.ViewRequests
	case EditRequests:
		return c.EditRequests
	case DeleteRequests:
		return c.DeleteRequests
	case ViewStatistics:
		return c.ViewStatistics
	case CreateRequest:
		return c.CreateRequest
	case AssignSpecialists:
		return c.AssignSpecialists
	case ExtendDeadline:
		return c.ExtendDeadline
	default:
		return false
	}
}

// HasAny reports whether at least one of the capabilities is granted.
func (c CapabilitySet) HasAny(capabilities ...Capability) bool {
	for _, capability := range capabilities {
		if c.Has(capability) {
			return true
		}
	}
	return false
}

func (c CapabilitySet) Names() []Capability {
	out := make([]Capability, 0, len(All))
	for _, capability := range All {
		if c.Has(capability) {
			out = append(out, capability)
		}
	}
	return out
}

func Can(role models.Role, capability Capability) bool {
	return For(role).Has(capability)
}

// CanComment reports whether role may post comments. Operators edit requests
// but do not comment on them.
func CanComment(role models.Role) bool {
	switch role {
	case models.RoleAdmin, models.RoleQualityManager, models.RoleSpecialist:
		return true
	default:
		return false
	}
}
