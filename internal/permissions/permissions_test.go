package permissions

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Glorc12/AirConditionerCompany/internal/models"
)

func TestDeleteRequestsGating(t *testing.T) {
	assert.False(t, For(models.RoleSpecialist).DeleteRequests)
	assert.True(t, For(models.RoleAdmin).DeleteRequests)
	assert.True(t, For(models.RoleQualityManager).DeleteRequests)
	assert.False(t, For(models.RoleOperator).DeleteRequests)
	assert.False(t, For(models.RoleCustomer).DeleteRequests)
}

func TestAdminHasEverything(t *testing.T) {
	set := For(models.RoleAdmin)
	for _, c := range All {
		assert.True(t, set.Has(c), "admin lacks %s", c)
	}
	assert.Len(t, set.Names(), len(All))
}

func TestDeterministic(t *testing.T) {
	for _, r := range models.Roles {
		assert.Equal(t, For(r), For(r))
	}
}

func TestUnknownRoleHasNothing(t *testing.T) {
	set := For(models.Role("intruder"))
	assert.Empty(t, set.Names())
	assert.False(t, Can(models.Role("intruder"), ViewRequests))
}

func TestManagerToolsOnlyForManagerClass(t *testing.T) {
	for _, r := range models.Roles {
		want := r == models.RoleAdmin || r == models.RoleQualityManager
		assert.Equal(t, want, Can(r, AssignSpecialists), "assign for %s", r)
		assert.Equal(t, want, Can(r, ExtendDeadline), "deadline for %s", r)
	}
}

func TestHasAny(t *testing.T) {
	set := For(models.RoleSpecialist)
	assert.True(t, set.HasAny(AssignSpecialists, EditRequests))
	assert.False(t, set.HasAny(AssignSpecialists, DeleteRequests))
	assert.False(t, set.Has(Capability("unknown")))
}

func TestCommentersAreEditorsExceptOperators(t *testing.T) {
	for _, r := range models.Roles {
		want := Can(r, EditRequests) && r != models.RoleOperator
		assert.Equal(t, want, CanComment(r), "comment for %s", r)
	}
	assert.False(t, CanComment(models.Role("intruder")))
}
