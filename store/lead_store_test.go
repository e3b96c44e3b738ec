package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leadflow/models"
)

func TestCreateLeadWritesHistory(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)

	lead := createLead(t, s, "First Lead", &manager.ID, manager.ID)

	history := historyFor(t, s.DB, lead.ID)
	require.Len(t, history, 1)
	assert.Equal(t, "lead created", history[0].ChangeReason)
	assert.Equal(t, models.StatusNew, history[0].NewStatus)
	require.NotNil(t, history[0].ToUserID)
	assert.Equal(t, manager.ID, *history[0].ToUserID)
}

func TestAssignLeadSelfClaim(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	hr := createUser(t, s.DB, "hr@example.com", models.RoleHR)

	lead := createLead(t, s, "Pool Lead", nil, manager.ID)

	claimed, err := s.AssignLead(lead.ID, hr.ID, hr.ID, "claimed")
	require.NoError(t, err)
	require.NotNil(t, claimed.CurrentOwnerID)
	assert.Equal(t, hr.ID, *claimed.CurrentOwnerID)

	history := historyFor(t, s.DB, lead.ID)
	require.Len(t, history, 2)
	assert.Equal(t, "claimed", history[1].ChangeReason)
	assert.Nil(t, history[1].FromUserID)
}

func TestAssignLeadSecondClaimLoses(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	hr1 := createUser(t, s.DB, "hr1@example.com", models.RoleHR)
	hr2 := createUser(t, s.DB, "hr2@example.com", models.RoleHR)

	lead := createLead(t, s, "Contested Lead", nil, manager.ID)

	_, err := s.AssignLead(lead.ID, hr1.ID, hr1.ID, "claimed")
	require.NoError(t, err)

	_, err = s.AssignLead(lead.ID, hr2.ID, hr2.ID, "claimed")
	assert.ErrorIs(t, err, ErrAlreadyAssigned)

	got, err := s.GetLead(lead.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CurrentOwnerID)
	assert.Equal(t, hr1.ID, *got.CurrentOwnerID)

	// The losing claim must not leave a history row behind.
	assert.Len(t, historyFor(t, s.DB, lead.ID), 2)
}

func TestAssignLeadManagerReassignsOwnedLead(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	hr := createUser(t, s.DB, "hr@example.com", models.RoleHR)
	accounts := createUser(t, s.DB, "accounts@example.com", models.RoleAccounts)

	lead := createLead(t, s, "Owned Lead", &hr.ID, manager.ID)

	updated, err := s.AssignLead(lead.ID, accounts.ID, manager.ID, "reassigned")
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentOwnerID)
	assert.Equal(t, accounts.ID, *updated.CurrentOwnerID)

	history := historyFor(t, s.DB, lead.ID)
	require.Len(t, history, 2)
	require.NotNil(t, history[1].FromUserID)
	assert.Equal(t, hr.ID, *history[1].FromUserID)
}

func TestAssignLeadInactiveTarget(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	inactive := createUser(t, s.DB, "gone@example.com", models.RoleHR)
	require.NoError(t, s.DB.Model(inactive).Update("is_active", false).Error)

	lead := createLead(t, s, "Lead", nil, manager.ID)

	_, err := s.AssignLead(lead.ID, inactive.ID, manager.ID, "reassigned")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUpdateLeadStatusChange(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	lead := createLead(t, s, "Lead", &manager.ID, manager.ID)

	status := models.StatusScheduled
	updated, err := s.UpdateLead(lead.ID, LeadUpdate{Status: &status}, manager.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusScheduled, updated.Status)

	history := historyFor(t, s.DB, lead.ID)
	require.Len(t, history, 2)
	entry := history[1]
	assert.Equal(t, models.StatusNew, entry.PreviousStatus)
	assert.Equal(t, models.StatusScheduled, entry.NewStatus)
	assert.True(t, entry.IsStatusChange())
	assert.Equal(t, "status changed", entry.ChangeReason)
}

func TestUpdateLeadMetadataEdit(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	lead := createLead(t, s, "Lead", &manager.ID, manager.ID)

	phone := "9876543210"
	updated, err := s.UpdateLead(lead.ID, LeadUpdate{Phone: &phone}, manager.ID)
	require.NoError(t, err)
	assert.Equal(t, phone, updated.Phone)
	assert.Equal(t, models.StatusNew, updated.Status)

	history := historyFor(t, s.DB, lead.ID)
	require.Len(t, history, 2)
	entry := history[1]
	assert.False(t, entry.IsStatusChange())
	assert.Equal(t, "lead details updated", entry.ChangeReason)
	assert.Contains(t, entry.ChangeData, "phone")
	assert.Contains(t, entry.ChangeData, phone)
}

func TestUpdateLeadNoChangeNoHistory(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	lead := createLead(t, s, "Lead", &manager.ID, manager.ID)

	name := "Lead"
	_, err := s.UpdateLead(lead.ID, LeadUpdate{Name: &name}, manager.ID)
	require.NoError(t, err)

	assert.Len(t, historyFor(t, s.DB, lead.ID), 1)
}

func TestUpdateLeadAutoTransfersToAccounts(t *testing.T) {
	s := newLeadStore(t)
	hr := createUser(t, s.DB, "hr@example.com", models.RoleHR)
	accounts1 := createUser(t, s.DB, "accounts1@example.com", models.RoleAccounts)
	createUser(t, s.DB, "accounts2@example.com", models.RoleAccounts)

	lead := createLead(t, s, "Finishing Lead", &hr.ID, hr.ID)

	status := models.StatusCompleted
	updated, err := s.UpdateLead(lead.ID, LeadUpdate{Status: &status}, hr.ID)
	require.NoError(t, err)

	require.NotNil(t, updated.CurrentOwnerID)
	assert.Equal(t, accounts1.ID, *updated.CurrentOwnerID)
	assert.Equal(t, models.StatusPending, updated.Status)

	history := historyFor(t, s.DB, lead.ID)
	require.Len(t, history, 3)
	transfer := history[2]
	assert.Equal(t, "auto-transferred to accounts", transfer.ChangeReason)
	assert.Equal(t, models.StatusCompleted, transfer.PreviousStatus)
	assert.Equal(t, models.StatusPending, transfer.NewStatus)
	require.NotNil(t, transfer.FromUserID)
	assert.Equal(t, hr.ID, *transfer.FromUserID)
	require.NotNil(t, transfer.ToUserID)
	assert.Equal(t, accounts1.ID, *transfer.ToUserID)
}

func TestUpdateLeadCompletedWithoutAccountsUser(t *testing.T) {
	s := newLeadStore(t)
	hr := createUser(t, s.DB, "hr@example.com", models.RoleHR)
	lead := createLead(t, s, "Lead", &hr.ID, hr.ID)

	status := models.StatusCompleted
	updated, err := s.UpdateLead(lead.ID, LeadUpdate{Status: &status}, hr.ID)
	require.NoError(t, err)

	// No accounts user to hand off to: the lead stays where it is.
	require.NotNil(t, updated.CurrentOwnerID)
	assert.Equal(t, hr.ID, *updated.CurrentOwnerID)
	assert.Equal(t, models.StatusCompleted, updated.Status)
	assert.Len(t, historyFor(t, s.DB, lead.ID), 2)
}

func TestUpdateLeadCompletedByNonHROwnerNoTransfer(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	createUser(t, s.DB, "accounts@example.com", models.RoleAccounts)

	lead := createLead(t, s, "Lead", &manager.ID, manager.ID)

	status := models.StatusCompleted
	updated, err := s.UpdateLead(lead.ID, LeadUpdate{Status: &status}, manager.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentOwnerID)
	assert.Equal(t, manager.ID, *updated.CurrentOwnerID)
	assert.Equal(t, models.StatusCompleted, updated.Status)
}

func TestPassToAccounts(t *testing.T) {
	s := newLeadStore(t)
	hr := createUser(t, s.DB, "hr@example.com", models.RoleHR)
	accounts := createUser(t, s.DB, "accounts@example.com", models.RoleAccounts)

	lead := createLead(t, s, "Lead", &hr.ID, hr.ID)

	updated, err := s.PassToAccounts(lead.ID, hr.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentOwnerID)
	assert.Equal(t, accounts.ID, *updated.CurrentOwnerID)
	assert.Equal(t, models.StatusPending, updated.Status)
}

func TestPassToAccountsNoAccountsUser(t *testing.T) {
	s := newLeadStore(t)
	hr := createUser(t, s.DB, "hr@example.com", models.RoleHR)
	lead := createLead(t, s, "Lead", &hr.ID, hr.ID)

	_, err := s.PassToAccounts(lead.ID, hr.ID)
	assert.ErrorIs(t, err, ErrNoAccountsUser)
}

func TestUnassignLeadResetsOwnershipAndStatus(t *testing.T) {
	s := newLeadStore(t)
	hr := createUser(t, s.DB, "hr@example.com", models.RoleHR)
	lead := createLead(t, s, "Lead", &hr.ID, hr.ID)

	status := models.StatusScheduled
	_, err := s.UpdateLead(lead.ID, LeadUpdate{Status: &status}, hr.ID)
	require.NoError(t, err)

	require.NoError(t, s.UnassignLead(lead.ID, hr.ID))

	got, err := s.GetLead(lead.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CurrentOwnerID)
	assert.Equal(t, models.StatusNew, got.Status)

	history := historyFor(t, s.DB, lead.ID)
	release := history[len(history)-1]
	assert.Equal(t, "released back to pool", release.ChangeReason)
	assert.Nil(t, release.ToUserID)
	assert.Equal(t, models.StatusScheduled, release.PreviousStatus)
}

func TestUnassignLeadNotOwner(t *testing.T) {
	s := newLeadStore(t)
	hr1 := createUser(t, s.DB, "hr1@example.com", models.RoleHR)
	hr2 := createUser(t, s.DB, "hr2@example.com", models.RoleHR)
	lead := createLead(t, s, "Lead", &hr1.ID, hr1.ID)

	assert.ErrorIs(t, s.UnassignLead(lead.ID, hr2.ID), ErrNotOwner)
}

func TestDeleteLeadRemovesLeadAndHistory(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	lead := createLead(t, s, "Lead", &manager.ID, manager.ID)

	status := models.StatusScheduled
	_, err := s.UpdateLead(lead.ID, LeadUpdate{Status: &status}, manager.ID)
	require.NoError(t, err)

	require.NoError(t, s.DeleteLead(lead.ID, manager.ID, "lead deleted"))

	_, err = s.GetLead(lead.ID)
	assert.ErrorIs(t, err, ErrLeadNotFound)
	assert.Empty(t, historyFor(t, s.DB, lead.ID))
}

func TestSearchLeadsFilters(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	hr := createUser(t, s.DB, "hr@example.com", models.RoleHR)

	jane := models.Lead{Name: "Jane Cooper", Email: "jane@example.com", Status: models.StatusNew, CurrentOwnerID: &hr.ID}
	require.NoError(t, s.CreateLead(&jane, manager.ID))
	bob := models.Lead{Name: "Bob Stone", Email: "bob@example.com", Status: models.StatusScheduled}
	require.NoError(t, s.CreateLead(&bob, manager.ID))
	pool := models.Lead{Name: "Pool Person", Status: models.StatusNew}
	require.NoError(t, s.CreateLead(&pool, manager.ID))

	leads, total, err := s.SearchLeads(LeadFilter{Search: "jane", Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, leads, 1)
	assert.Equal(t, "Jane Cooper", leads[0].Name)

	leads, total, err = s.SearchLeads(LeadFilter{Status: models.StatusScheduled, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	assert.Equal(t, "Bob Stone", leads[0].Name)

	_, total, err = s.SearchLeads(LeadFilter{UnassignedOnly: true, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	_, total, err = s.SearchLeads(LeadFilter{OwnerID: &hr.ID, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func TestSearchLeadsPreviousOwner(t *testing.T) {
	s := newLeadStore(t)
	hr := createUser(t, s.DB, "hr@example.com", models.RoleHR)
	accounts := createUser(t, s.DB, "accounts@example.com", models.RoleAccounts)

	lead := createLead(t, s, "Handed Off", &hr.ID, hr.ID)

	status := models.StatusCompleted
	updated, err := s.UpdateLead(lead.ID, LeadUpdate{Status: &status}, hr.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.CurrentOwnerID)
	require.Equal(t, accounts.ID, *updated.CurrentOwnerID)

	// The HR user no longer owns the lead but still finds it through the
	// ledger-backed previously-owned filter.
	leads, total, err := s.SearchLeads(LeadFilter{
		PreviousOwnerID: &hr.ID,
		Statuses:        []string{models.StatusCompleted, models.StatusPending},
		Limit:           10,
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
	require.Len(t, leads, 1)
	assert.Equal(t, lead.ID, leads[0].ID)
}

func TestSearchLeadsPagination(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)

	for i := 0; i < 5; i++ {
		lead := models.Lead{Name: "Lead", Status: models.StatusNew}
		require.NoError(t, s.CreateLead(&lead, manager.ID))
	}

	leads, total, err := s.SearchLeads(LeadFilter{Limit: 2, Offset: 4})
	require.NoError(t, err)
	assert.EqualValues(t, 5, total)
	assert.Len(t, leads, 1)
}

func TestSearchLeadsDateRange(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	createLead(t, s, "Lead", nil, manager.ID)

	from := time.Now().Add(-time.Hour)
	_, total, err := s.SearchLeads(LeadFilter{CreatedFrom: &from, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)

	to := time.Now().Add(-time.Hour)
	_, total, err = s.SearchLeads(LeadFilter{CreatedTo: &to, Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 0, total)
}

func TestBulkInsertSkipsDuplicates(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)

	existing := models.Lead{Name: "Existing", Email: "known@example.com", Status: models.StatusNew}
	require.NoError(t, s.CreateLead(&existing, manager.ID))

	owner := manager.ID
	inserted, skipped, err := s.BulkInsert([]models.Lead{
		{Name: "A", Email: "a@example.com"},
		{Name: "A again", Email: "A@example.com"},
		{Name: "Known", Email: "known@example.com"},
		{Name: "No Email", CurrentOwnerID: &owner},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, inserted)
	assert.Equal(t, 2, skipped)

	// Imported leads always land in the shared pool.
	var got models.Lead
	require.NoError(t, s.DB.Where("name = ?", "No Email").First(&got).Error)
	assert.Nil(t, got.CurrentOwnerID)
	assert.Equal(t, models.StatusNew, got.Status)
}

func TestLeadHistoryOrderAndAllHistory(t *testing.T) {
	s := newLeadStore(t)
	manager := createUser(t, s.DB, "manager@example.com", models.RoleManager)
	lead := createLead(t, s, "Lead", &manager.ID, manager.ID)

	for _, status := range []string{models.StatusScheduled, models.StatusCompleted} {
		st := status
		_, err := s.UpdateLead(lead.ID, LeadUpdate{Status: &st}, manager.ID)
		require.NoError(t, err)
	}

	history, err := s.LeadHistory(lead.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "lead created", history[0].ChangeReason)
	assert.Equal(t, models.StatusCompleted, history[2].NewStatus)

	page, total, err := s.AllHistory(2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, page, 2)
}

func TestLeadHistoryUnknownLead(t *testing.T) {
	s := newLeadStore(t)
	_, err := s.LeadHistory(9999)
	assert.ErrorIs(t, err, ErrLeadNotFound)
}
