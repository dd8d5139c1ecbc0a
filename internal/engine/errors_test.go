package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/stagesync/internal/ir"
	"github.com/roach88/stagesync/internal/translation"
)

func TestRuntimeError_Error(t *testing.T) {
	err := NewMissingTableError(ir.TableDocument)
	assert.Equal(t, `MISSING_TABLE: payload table "CMS_Document" is missing`, err.Error())

	task := &ir.Task{Seq: 7, Type: ir.TaskCreateObject, ObjectType: "cms.user", ObjectCodeName: "admin"}
	err.withTask(task)
	assert.Equal(t,
		`MISSING_TABLE: payload table "CMS_Document" is missing (seq=7, type=CreateObject, entity=cms.user//admin)`,
		err.Error())

	wrapped := NewUnresolvedError("parent missing", errors.New("lookup failed"))
	assert.Equal(t, "UNRESOLVED_DEPENDENCY: parent missing: lookup failed", wrapped.Error())
	assert.EqualError(t, errors.Unwrap(wrapped), "lookup failed")
}

func TestClassify(t *testing.T) {
	task := &ir.Task{Seq: 3, Type: ir.TaskCreateObject, ObjectType: "media.file", ObjectCodeName: "a.png"}

	assert.NoError(t, classify(task, nil))

	err := classify(task, &translation.UnresolvedError{
		ObjectType: "media.file",
		Column:     ir.ColFileLibraryID,
		DependsOn:  "media.library",
		SourceID:   3,
	})
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeUnresolvedDependency))
	assert.True(t, IsUnresolvedError(err))
	var re *RuntimeError
	require.ErrorAs(t, err, &re)
	assert.Equal(t, int64(3), re.TaskSeq)

	err = classify(task, NewInvalidPayloadError("bad row"))
	assert.True(t, HasCode(err, ErrCodeInvalidPayload))
	require.ErrorAs(t, err, &re)
	assert.Equal(t, "media.file//a.png", re.EntityKey)

	err = classify(task, fmt.Errorf("apply: %w", context.Canceled))
	assert.True(t, IsCancelled(err))
	assert.ErrorIs(t, err, ErrCancelled)
	assert.False(t, HasCode(err, ErrCodeInvalidPayload))

	plain := errors.New("disk full")
	assert.Same(t, plain, classify(task, plain))
}

func TestIsCancelled(t *testing.T) {
	assert.True(t, IsCancelled(ErrCancelled))
	assert.True(t, IsCancelled(context.DeadlineExceeded))
	assert.True(t, IsCancelled(fmt.Errorf("run: %w", context.Canceled)))
	assert.False(t, IsCancelled(NewUnknownTaskTypeError(ir.TaskType(99))))
	assert.False(t, IsCancelled(nil))
}
