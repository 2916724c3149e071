package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRoleSet(t *testing.T) {
	tests := []struct {
		name  string
		roles []Role
		want  []Role
	}{
		{"implicit requester", nil, []Role{RoleRequester}},
		{"manager implies technician", []Role{RoleManager}, []Role{RoleManager, RoleRequester, RoleTechnician}},
		{"admin stands alone", []Role{RoleAdmin, RoleManager, RoleTechnician}, []Role{RoleAdmin, RoleRequester}},
		{"technician", []Role{RoleTechnician}, []Role{RoleRequester, RoleTechnician}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NewRoleSet(tt.roles...).Slice())
		})
	}
}

func TestRoleSetFromStrings(t *testing.T) {
	set := RoleSetFromStrings([]string{"manager", "bogus"})
	assert.True(t, set.Has(RoleManager))
	assert.True(t, set.Has(RoleTechnician))
	assert.True(t, set.Has(RoleRequester))
	assert.Len(t, set, 3)
}

func TestPaginate(t *testing.T) {
	items := []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

	p := Paginate(items, 2, 5)
	assert.Equal(t, []int{6, 7, 8, 9, 10}, p.Data)
	assert.Equal(t, 12, p.TotalItems)
	assert.Equal(t, 3, p.TotalPages)
	assert.Equal(t, 2, p.CurrentPage)

	p = Paginate(items, 0, 0)
	assert.Equal(t, 1, p.CurrentPage)
	assert.Len(t, p.Data, DefaultLimit)

	p = Paginate(items, 9, 5)
	assert.Empty(t, p.Data)
	assert.Equal(t, 12, p.TotalItems)

	p = Paginate([]int{}, 1, 10)
	assert.Equal(t, 0, p.TotalPages)

	p = Paginate(items, math.MaxInt, 2)
	assert.Empty(t, p.Data)
	assert.Equal(t, math.MaxInt, p.CurrentPage)
	assert.Equal(t, 6, p.TotalPages)
}

func TestOffsetSaturates(t *testing.T) {
	assert.Equal(t, 0, Offset(1, 10))
	assert.Equal(t, 20, Offset(3, 10))
	assert.Equal(t, math.MaxInt, Offset(math.MaxInt, 2))
	assert.Equal(t, math.MaxInt, Offset(math.MaxInt/50+2, 100))
}

func TestRequestClone(t *testing.T) {
	h := HandleDeclined
	r := Request{ID: "r1", AssignedTo: StringPtr("t1"), ManagerHandle: &h}
	c := r.Clone()
	*c.AssignedTo = "t2"
	*c.ManagerHandle = HandleApproved
	assert.Equal(t, "t1", *r.AssignedTo)
	assert.Equal(t, HandleDeclined, *r.ManagerHandle)
}

func TestStatusTerminal(t *testing.T) {
	assert.True(t, StatusClosed.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusWorkInProgress.Terminal())
	assert.False(t, RequestStatus("Pending").Valid())
}
