package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStatusClassification(t *testing.T) {
	cases := []struct {
		status   Status
		editable bool
		sent     bool
		active   bool
		terminal bool
	}{
		{StatusPending, true, false, true, false},
		{StatusOrdenEnviada, false, true, true, false},
		{StatusOrdenRecibida, false, true, true, false},
		{StatusEnPreparacion, false, true, true, false},
		{StatusListaParaEntregar, false, true, true, false},
		{StatusEnEntrega, false, true, true, false},
		{StatusCompleted, false, false, false, true},
		{StatusConIncidencias, false, false, true, true},
	}

	for _, tc := range cases {
		t.Run(string(tc.status), func(t *testing.T) {
			require.Equal(t, tc.editable, tc.status.Editable())
			require.Equal(t, tc.sent, tc.status.Sent())
			require.Equal(t, tc.active, tc.status.Active())
			require.Equal(t, tc.terminal, tc.status.Terminal())
			require.True(t, tc.status.Valid())
		})
	}

	require.False(t, Status("shipped").Valid())
}

func TestCanTransition(t *testing.T) {
	t.Run("forward single step only", func(t *testing.T) {
		require.True(t, StatusPending.CanTransition(StatusOrdenEnviada))
		require.True(t, StatusOrdenEnviada.CanTransition(StatusOrdenRecibida))
		require.True(t, StatusEnEntrega.CanTransition(StatusCompleted))

		require.False(t, StatusPending.CanTransition(StatusOrdenRecibida))
		require.False(t, StatusOrdenRecibida.CanTransition(StatusOrdenEnviada))
	})

	t.Run("side branch into con_incidencias from any non-terminal", func(t *testing.T) {
		for _, s := range []Status{StatusPending, StatusOrdenEnviada, StatusEnEntrega} {
			require.True(t, s.CanTransition(StatusConIncidencias), string(s))
		}
	})

	t.Run("terminal states are dead ends", func(t *testing.T) {
		require.False(t, StatusCompleted.CanTransition(StatusConIncidencias))
		require.False(t, StatusConIncidencias.CanTransition(StatusCompleted))
	})
}
