package tx

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errDomain = errors.New("insufficient stock")

func newTestCoordinator() (*Coordinator, *fakeResource) {
	r := &fakeResource{}
	return NewCoordinator(r), r
}

func desc(p Propagation, opts ...Option) Descriptor {
	return NewDescriptor(p, opts...)
}

func TestRequired_WithoutAmbient_BeginsAndCommitsOnce(t *testing.T) {
	c, r := newTestCoordinator()
	ctx := context.Background()

	var inside *Transaction
	err := c.Execute(ctx, desc(Required), func(ctx context.Context) error {
		inside, _ = Active(ctx)
		return nil
	})

	require.NoError(t, err)
	require.NotNil(t, inside)
	assert.Equal(t, []string{"begin:1", "commit:1"}, r.Ops())
	assert.True(t, inside.IsCompleted())
	assert.Nil(t, Current(ctx))
}

func TestRequired_WithAmbient_Joins(t *testing.T) {
	c, r := newTestCoordinator()

	var outer, inner *Transaction
	err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		outer = Current(ctx)
		return c.Execute(ctx, desc(Required), func(ctx context.Context) error {
			inner = Current(ctx)
			return nil
		})
	})

	require.NoError(t, err)
	assert.Same(t, outer, inner)
	assert.Equal(t, []string{"begin:1", "commit:1"}, r.Ops())
}

func TestRequired_FailureRollsBackAndReturnsErrorUnchanged(t *testing.T) {
	c, r := newTestCoordinator()

	err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		return errDomain
	})

	assert.Same(t, errDomain, err)
	assert.Equal(t, []string{"begin:1", "rollback:1"}, r.Ops())
}

func TestRequired_JoinedFailure_MarksOwnerAndOwnerRollsBack(t *testing.T) {
	c, r := newTestCoordinator()

	var outer *Transaction
	err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		outer = Current(ctx)
		innerErr := c.Execute(ctx, desc(Required), func(ctx context.Context) error {
			return errDomain
		})
		assert.Same(t, errDomain, innerErr)
		assert.True(t, outer.IsRollbackOnly(), "joined failure must mark the owner")
		assert.Equal(t, []string{"begin:1"}, r.Ops(), "joiner must not close a handle it does not own")
		return nil // swallow
	})

	assert.ErrorIs(t, err, ErrTransactionRolledBack)
	assert.Equal(t, []string{"begin:1", "rollback:1"}, r.Ops())
}

func TestRollbackOnly_IsMonotonic(t *testing.T) {
	c, _ := newTestCoordinator()

	_ = c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		outer := Current(ctx)
		_ = c.Execute(ctx, desc(Required), func(context.Context) error { return errDomain })
		require.True(t, outer.IsRollbackOnly())

		require.NoError(t, c.Execute(ctx, desc(Required), func(context.Context) error { return nil }))
		require.NoError(t, c.Execute(ctx, desc(Supports), func(context.Context) error { return nil }))
		assert.True(t, outer.IsRollbackOnly())
		return nil
	})
}

func TestRequiresNew_IsIndependentOfOuterOutcome(t *testing.T) {
	c, r := newTestCoordinator()

	var outer, inner *Transaction
	err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		outer = Current(ctx)
		require.NoError(t, c.Execute(ctx, desc(RequiresNew), func(ctx context.Context) error {
			inner = Current(ctx)
			return nil
		}))
		assert.Same(t, outer, Current(ctx))
		return errDomain
	})

	assert.Same(t, errDomain, err)
	assert.NotSame(t, outer, inner)
	assert.Same(t, outer, inner.Suspended())
	assert.Equal(t, []string{"begin:1", "begin:2", "commit:2", "rollback:1"}, r.Ops())
}

func TestRequiresNew_InnerFailureLeavesOuterCommittable(t *testing.T) {
	c, r := newTestCoordinator()

	err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		innerErr := c.Execute(ctx, desc(RequiresNew), func(context.Context) error { return errDomain })
		assert.Same(t, errDomain, innerErr)
		assert.False(t, Current(ctx).IsRollbackOnly())
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"begin:1", "begin:2", "rollback:2", "commit:1"}, r.Ops())
}

func TestRequiresNew_RestoresSuspendedTransactionByIdentity(t *testing.T) {
	c, r := newTestCoordinator()

	err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		outer := Current(ctx)
		_ = c.Execute(ctx, desc(Required), func(context.Context) error { return errDomain })

		require.NoError(t, c.Execute(ctx, desc(RequiresNew), func(ctx context.Context) error {
			assert.NotSame(t, outer, Current(ctx))
			return nil
		}))

		after := Current(ctx)
		assert.Same(t, outer, after)
		assert.True(t, after.IsRollbackOnly(), "suspension must not lose the rollback-only mark")
		return nil
	})

	assert.ErrorIs(t, err, ErrTransactionRolledBack)
	assert.Equal(t, []string{"begin:1", "begin:2", "commit:2", "rollback:1"}, r.Ops())
}

func TestSupports(t *testing.T) {
	t.Run("without ambient runs non-transactionally", func(t *testing.T) {
		c, r := newTestCoordinator()
		ran := false
		err := c.Execute(context.Background(), desc(Supports), func(ctx context.Context) error {
			ran = true
			_, active := Active(ctx)
			assert.False(t, active)
			assert.NotNil(t, Current(ctx))
			return errDomain
		})
		assert.True(t, ran)
		assert.Same(t, errDomain, err)
		assert.Empty(t, r.Ops())
	})

	t.Run("with ambient joins", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			outer := Current(ctx)
			_ = c.Execute(ctx, desc(Supports), func(ctx context.Context) error {
				assert.Same(t, outer, Current(ctx))
				return errDomain
			})
			assert.True(t, outer.IsRollbackOnly())
			return errDomain
		})
		assert.Same(t, errDomain, err)
		assert.Equal(t, []string{"begin:1", "rollback:1"}, r.Ops())
	})
}

func TestNotSupported_SuspendsAmbient(t *testing.T) {
	c, r := newTestCoordinator()

	err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		outer := Current(ctx)
		innerErr := c.Execute(ctx, desc(NotSupported), func(ctx context.Context) error {
			_, active := Active(ctx)
			assert.False(t, active)
			assert.Same(t, outer, Current(ctx).Suspended())

			// A REQUIRED call inside a non-transactional scope gets its own transaction.
			return c.Execute(ctx, desc(Required), func(ctx context.Context) error {
				assert.NotSame(t, outer, Current(ctx))
				return nil
			})
		})
		require.NoError(t, innerErr)
		assert.Same(t, outer, Current(ctx))
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"begin:1", "begin:2", "commit:2", "commit:1"}, r.Ops())
}

func TestNotSupported_FailureDoesNotTouchSuspended(t *testing.T) {
	c, r := newTestCoordinator()

	err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		innerErr := c.Execute(ctx, desc(NotSupported), func(context.Context) error { return errDomain })
		assert.Same(t, errDomain, innerErr)
		assert.False(t, Current(ctx).IsRollbackOnly())
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"begin:1", "commit:1"}, r.Ops())
}

func TestMandatory(t *testing.T) {
	t.Run("without ambient never runs work", func(t *testing.T) {
		c, r := newTestCoordinator()
		calls := 0
		err := c.Execute(context.Background(), desc(Mandatory), func(context.Context) error {
			calls++
			return nil
		})
		assert.ErrorIs(t, err, ErrIllegalTransactionState)
		assert.Zero(t, calls)
		assert.Empty(t, r.Ops())
	})

	t.Run("with ambient joins", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			outer := Current(ctx)
			return c.Execute(ctx, desc(Mandatory), func(ctx context.Context) error {
				assert.Same(t, outer, Current(ctx))
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"begin:1", "commit:1"}, r.Ops())
	})
}

func TestNever(t *testing.T) {
	t.Run("with ambient never runs work", func(t *testing.T) {
		c, r := newTestCoordinator()
		calls := 0
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			innerErr := c.Execute(ctx, desc(Never), func(context.Context) error {
				calls++
				return nil
			})
			assert.ErrorIs(t, innerErr, ErrIllegalTransactionState)
			assert.False(t, Current(ctx).IsRollbackOnly())
			return nil
		})
		require.NoError(t, err)
		assert.Zero(t, calls)
		assert.Equal(t, []string{"begin:1", "commit:1"}, r.Ops())
	})

	t.Run("without ambient runs unwrapped", func(t *testing.T) {
		c, r := newTestCoordinator()
		calls := 0
		err := c.Execute(context.Background(), desc(Never), func(ctx context.Context) error {
			calls++
			_, active := Active(ctx)
			assert.False(t, active)
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 1, calls)
		assert.Empty(t, r.Ops())
	})
}

func TestNested_WithAmbient(t *testing.T) {
	t.Run("success releases savepoint", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			outer := Current(ctx)
			return c.Execute(ctx, desc(Nested), func(ctx context.Context) error {
				nested := Current(ctx)
				assert.True(t, nested.IsNested())
				assert.Same(t, outer, nested.Parent())
				assert.Equal(t, outer.Handle(), nested.Handle())
				return nil
			})
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"begin:1", "savepoint:1.1", "release:1.1", "commit:1"}, r.Ops())
	})

	t.Run("failure rolls back to savepoint only", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			outer := Current(ctx)
			nestedErr := c.Execute(ctx, desc(Nested), func(context.Context) error { return errDomain })
			assert.Same(t, errDomain, nestedErr)
			assert.False(t, outer.IsRollbackOnly())
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"begin:1", "savepoint:1.1", "rollback-to:1.1", "release:1.1", "commit:1"}, r.Ops())
	})

	t.Run("propagated failure rolls back parent", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			return c.Execute(ctx, desc(Nested), func(context.Context) error { return errDomain })
		})
		assert.Same(t, errDomain, err)
		assert.Equal(t, []string{"begin:1", "savepoint:1.1", "rollback-to:1.1", "release:1.1", "rollback:1"}, r.Ops())
	})

	t.Run("join inside nested marks the savepoint scope", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			outer := Current(ctx)
			nestedErr := c.Execute(ctx, desc(Nested), func(ctx context.Context) error {
				_ = c.Execute(ctx, desc(Required), func(context.Context) error { return errDomain })
				return nil
			})
			assert.ErrorIs(t, nestedErr, ErrTransactionRolledBack)
			assert.False(t, outer.IsRollbackOnly())
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"begin:1", "savepoint:1.1", "rollback-to:1.1", "release:1.1", "commit:1"}, r.Ops())
	})

	t.Run("sibling savepoints", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			_ = c.Execute(ctx, desc(Nested), func(context.Context) error { return nil })
			_ = c.Execute(ctx, desc(Nested), func(context.Context) error { return errDomain })
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{
			"begin:1",
			"savepoint:1.1", "release:1.1",
			"savepoint:1.2", "rollback-to:1.2", "release:1.2",
			"commit:1",
		}, r.Ops())
	})
}

func TestNested_WithoutAmbient_BeginsTransaction(t *testing.T) {
	c, r := newTestCoordinator()
	err := c.Execute(context.Background(), desc(Nested), func(ctx context.Context) error {
		assert.False(t, Current(ctx).IsNested())
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"begin:1", "commit:1"}, r.Ops())
}

func TestNoRollbackFor(t *testing.T) {
	t.Run("owner commits and still returns the failure", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required, NoRollbackFor(errDomain)), func(context.Context) error {
			return errDomain
		})
		assert.Same(t, errDomain, err)
		assert.Equal(t, []string{"begin:1", "commit:1"}, r.Ops())
	})

	t.Run("other failures still roll back", func(t *testing.T) {
		c, r := newTestCoordinator()
		other := errors.New("boom")
		err := c.Execute(context.Background(), desc(Required, NoRollbackFor(errDomain)), func(context.Context) error {
			return other
		})
		assert.Same(t, other, err)
		assert.Equal(t, []string{"begin:1", "rollback:1"}, r.Ops())
	})

	t.Run("commit of a rollback-only transaction fails", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required, NoRollbackFor(errDomain)), func(ctx context.Context) error {
			// A joined call without the exemption marks the shared transaction.
			_ = c.Execute(ctx, desc(Required), func(context.Context) error { return errDomain })
			return errDomain
		})
		assert.ErrorIs(t, err, errDomain)
		assert.ErrorIs(t, err, ErrTransactionRolledBack)
		assert.Equal(t, []string{"begin:1", "rollback:1"}, r.Ops())
	})

	t.Run("joined exempt failure leaves owner committable", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			_ = c.Execute(ctx, desc(Required, NoRollbackFor(errDomain)), func(context.Context) error { return errDomain })
			assert.False(t, Current(ctx).IsRollbackOnly())
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, []string{"begin:1", "commit:1"}, r.Ops())
	})
}

func TestResourceFailures(t *testing.T) {
	t.Run("begin failure never runs work", func(t *testing.T) {
		c, r := newTestCoordinator()
		r.beginErr = errors.New("connection refused")
		calls := 0
		err := c.Execute(context.Background(), desc(Required), func(context.Context) error {
			calls++
			return nil
		})
		assert.Zero(t, calls)
		assert.ErrorIs(t, err, ErrTransactionSystem)
		assert.ErrorIs(t, err, r.beginErr)

		var sysErr *SystemError
		require.ErrorAs(t, err, &sysErr)
		assert.Equal(t, PhaseBegin, sysErr.Phase)
	})

	t.Run("savepoint failure never runs work", func(t *testing.T) {
		c, r := newTestCoordinator()
		r.savepointErr = errors.New("savepoints unsupported")
		calls := 0
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			return c.Execute(ctx, desc(Nested), func(context.Context) error {
				calls++
				return nil
			})
		})
		assert.Zero(t, calls)
		assert.ErrorIs(t, err, ErrTransactionSystem)
		assert.Equal(t, []string{"begin:1", "rollback:1"}, r.Ops())
	})

	t.Run("commit failure is surfaced", func(t *testing.T) {
		c, r := newTestCoordinator()
		r.commitErr = errors.New("serialization failure")
		err := c.Execute(context.Background(), desc(Required), func(context.Context) error { return nil })

		var sysErr *SystemError
		require.ErrorAs(t, err, &sysErr)
		assert.Equal(t, PhaseCommit, sysErr.Phase)
		assert.Equal(t, []string{"begin:1", "rollback:1"}, r.Ops())
	})

	t.Run("rollback failure is joined with the work failure", func(t *testing.T) {
		c, r := newTestCoordinator()
		r.rollbackErr = errors.New("connection lost")
		err := c.Execute(context.Background(), desc(Required), func(context.Context) error { return errDomain })
		assert.ErrorIs(t, err, errDomain)
		assert.ErrorIs(t, err, ErrTransactionSystem)
	})
}

func TestPanicInWork_RollsBackAndRepanics(t *testing.T) {
	c, r := newTestCoordinator()

	require.PanicsWithValue(t, "kaboom", func() {
		_ = c.Execute(context.Background(), desc(Required), func(context.Context) error {
			panic("kaboom")
		})
	})
	assert.Equal(t, []string{"begin:1", "rollback:1"}, r.Ops())

	t.Run("joined panic marks owner", func(t *testing.T) {
		c, r := newTestCoordinator()
		err := c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
			func() {
				defer func() { _ = recover() }()
				_ = c.Execute(ctx, desc(Required), func(context.Context) error { panic("kaboom") })
			}()
			assert.True(t, Current(ctx).IsRollbackOnly())
			return nil
		})
		assert.ErrorIs(t, err, ErrTransactionRolledBack)
		assert.Equal(t, []string{"begin:1", "rollback:1"}, r.Ops())
	})
}

func TestCompletedTransactionIsNotAmbient(t *testing.T) {
	c, r := newTestCoordinator()

	var leaked context.Context
	require.NoError(t, c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
		leaked = ctx
		return nil
	}))

	err := c.Execute(leaked, desc(Mandatory), func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrIllegalTransactionState)

	require.NoError(t, c.Execute(leaked, desc(Required), func(context.Context) error { return nil }))
	assert.Equal(t, []string{"begin:1", "commit:1", "begin:2", "commit:2"}, r.Ops())
}

func TestConcurrentCallChainsDoNotShareAmbientState(t *testing.T) {
	c, r := newTestCoordinator()
	const chains = 16

	var wg sync.WaitGroup
	seen := make([]*Transaction, chains)
	for i := 0; i < chains; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = c.Execute(context.Background(), desc(Required), func(ctx context.Context) error {
				seen[i] = Current(ctx)
				return c.Execute(ctx, desc(Mandatory), func(ctx context.Context) error {
					if Current(ctx) != seen[i] {
						return errors.New("joined a foreign transaction")
					}
					return nil
				})
			})
		}(i)
	}
	wg.Wait()

	distinct := make(map[*Transaction]struct{})
	for _, tr := range seen {
		distinct[tr] = struct{}{}
		assert.True(t, tr.IsCompleted())
		assert.False(t, tr.IsRollbackOnly())
	}
	assert.Len(t, distinct, chains)
	assert.Len(t, r.Ops(), 2*chains)
}

func TestRun_ReturnsValue(t *testing.T) {
	c, _ := newTestCoordinator()

	v, err := Run(context.Background(), c, desc(Required), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, v)

	v, err = Run(context.Background(), c, desc(Required), func(context.Context) (int, error) {
		return 7, errDomain
	})
	assert.Same(t, errDomain, err)
	assert.Zero(t, v)
}

func TestReadOnlyIsPassedToResource(t *testing.T) {
	c, r := newTestCoordinator()

	require.NoError(t, c.ReadOnly(context.Background(), func(ctx context.Context) error {
		assert.True(t, Current(ctx).IsReadOnly())
		return nil
	}))
	require.Len(t, r.begunOpts, 1)
	assert.True(t, r.begunOpts[0].ReadOnly)
}
