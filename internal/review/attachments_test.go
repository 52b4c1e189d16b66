package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/joescharf/rq/internal/models"
)

func TestPartitionAttachments(t *testing.T) {
	task := &models.Attachment{Source: "Task", Name: "a"}
	sub := &models.Attachment{Source: "Submission", Name: "b"}
	other := &models.Attachment{Source: "other", Name: "c"}
	task2 := &models.Attachment{Source: "TASK", Name: "d"}

	gotTask, gotSub := PartitionAttachments([]*models.Attachment{task, sub, other, task2})
	assert.Equal(t, []*models.Attachment{task, task2}, gotTask)
	assert.Equal(t, []*models.Attachment{sub}, gotSub)
}

func TestPartitionAttachments_AbsentVersusEmpty(t *testing.T) {
	task, sub := PartitionAttachments(nil)
	assert.Nil(t, task)
	assert.Nil(t, sub)

	task, sub = PartitionAttachments([]*models.Attachment{})
	assert.NotNil(t, task)
	assert.NotNil(t, sub)
	assert.Empty(t, task)
	assert.Empty(t, sub)
}

func TestPartitionAttachments_NoPartialMatch(t *testing.T) {
	task, sub := PartitionAttachments([]*models.Attachment{{Source: "tasks"}, {Source: " submission"}})
	assert.Empty(t, task)
	assert.Empty(t, sub)
}
