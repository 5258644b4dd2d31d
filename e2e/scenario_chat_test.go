package e2e

import (
	"context"
	"fmt"
	"quorum/client"
	"quorum/domain"
	"quorum/transport/admin"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type testChatSuite struct {
	BaseSuite
}

func TestChatSuite(t *testing.T) {
	suite.Run(t, &testChatSuite{})
}

func (s *testChatSuite) TestHealth() {
	s.WithAdmin("Server reports serving", func(ctx context.Context, health healthpb.HealthClient) {
		for _, service := range []string{"", admin.ServiceName} {
			resp, err := health.Check(ctx, &healthpb.HealthCheckRequest{Service: service})
			s.Require().NoError(err)
			s.Require().Equal(healthpb.HealthCheckResponse_SERVING, resp.Status)
		}
	})
}

func (s *testChatSuite) TestConversation() {
	groupID := domain.GroupID(s.Config.Group)
	// A marker keeps the run apart from what earlier runs left in the room
	marker := uuid.NewString()[:8]

	s.WithChat("bob", func(ctx context.Context, bob *client.Client) {
		var transcriptBefore int

		s.Run("Step 1: bob joins and gets the room history", func() {
			transcript, err := bob.Join(ctx, groupID)
			s.Require().NoError(err)
			s.Require().True(transcript.Live())
			transcriptBefore = len(transcript.Messages())
		})

		s.Run("Step 2: alice posts, bob sees it live", func() {
			s.WithChat("alice", func(ctx context.Context, alice *client.Client) {
				for i := 1; i <= 3; i++ {
					ack, err := alice.Send(ctx, groupID, fmt.Sprintf("%s message %d", marker, i), "")
					s.Require().NoError(err)
					s.Require().Equal(domain.StagePublished, ack.Stage)
				}
			})
			transcript, ok := bob.Transcript(groupID)
			s.Require().True(ok)
			s.Require().Eventually(func() bool {
				return len(transcript.Messages()) == transcriptBefore+3
			}, 5*time.Second, 50*time.Millisecond)

			messages := transcript.Messages()
			for i := 1; i < len(messages); i++ {
				s.Require().Less(messages[i-1].Sequence, messages[i].Sequence)
			}
		})

		s.Run("Step 3: history and search agree with what was delivered", func() {
			transcript, _ := bob.Transcript(groupID)
			live := transcript.Messages()
			last := live[len(live)-1]

			history, err := bob.History(ctx, groupID, last.Sequence-1)
			s.Require().NoError(err)
			s.Require().Len(history, 1)
			s.Require().Equal(last.ID, history[0].ID)

			s.Require().Eventually(func() bool {
				found, err := bob.Search(ctx, groupID, marker)
				return err == nil && len(found) == 3
			}, 10*time.Second, 200*time.Millisecond)
		})
	})
}
