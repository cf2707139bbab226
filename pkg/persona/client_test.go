package persona

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tombee/taskforge/pkg/transport"
)

func newTestClient(t *testing.T) (*Client, *transport.InMemory) {
	t.Helper()
	tr, err := transport.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(tr.Close)
	return NewClient(tr, "persona-replies", nil), tr
}

func TestSendPersonaRequest_RequiresRemoteRepo(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.SendPersonaRequest(context.Background(), "persona:requests", Request{ToPersona: Planner})
	require.Error(t, err)
}

func TestSendAndWait_RoundTrip(t *testing.T) {
	client, tr := newTestClient(t)
	ctx := context.Background()

	corrID, err := client.SendPersonaRequest(ctx, "persona:requests", Request{
		WorkflowID: "wf-1",
		ToPersona:  Planner,
		Repo:       "git@example.com:org/repo.git",
	})
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = tr.Append(ctx, replyStream(Planner), map[string]string{
			"corrId": corrID,
			"status": "done",
			"result": `{"status":"pass"}`,
		})
	}()

	reply, err := client.WaitForPersonaCompletion(ctx, Planner, "wf-1", corrID, 2000)
	require.NoError(t, err)
	require.Equal(t, corrID, reply.CorrID)
	require.Equal(t, StatusPass, NormalizeStatus(reply.Result))
}

func TestWaitForPersonaCompletion_DiscardsMismatchedCorrID(t *testing.T) {
	client, tr := newTestClient(t)
	ctx := context.Background()

	require.NoError(t, tr.CreateGroup(ctx, replyStream(Planner), "persona-replies:"+Planner, "$"))

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = tr.Append(ctx, replyStream(Planner), map[string]string{"corrId": "stale", "status": "done", "result": "{}"})
		time.Sleep(10 * time.Millisecond)
		_, _ = tr.Append(ctx, replyStream(Planner), map[string]string{"corrId": "wanted", "status": "done", "result": "{}"})
	}()

	reply, err := client.WaitForPersonaCompletion(ctx, Planner, "wf-1", "wanted", 2000)
	require.NoError(t, err)
	require.Equal(t, "wanted", reply.CorrID)
}

func TestWaitForPersonaCompletion_TimesOut(t *testing.T) {
	client, _ := newTestClient(t)
	_, err := client.WaitForPersonaCompletion(context.Background(), Planner, "wf-1", "none", 50)
	require.Error(t, err)
}
