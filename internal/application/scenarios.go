package application

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/bnema/imsim/internal/domain"
)

const (
	ScenarioDeepConversation = "deep-conversation"
	ScenarioGroupStorm       = "group-storm"
	ScenarioOfflineBurst     = "offline-burst"
	ScenarioMultiDeviceKick  = "multi-device-kick"

	stormGroupName = "StormHub"
)

// deepConversation: two friends alternate messages, each followed by a
// deferred sync of the recipient in case the push is lost.
func deepConversation(ctx context.Context, r *run, start domain.UserID) error {
	u1, u2 := start, start+1
	r.users(u1, u2)

	for _, id := range []domain.UserID{u1, u2} {
		if err := r.login(ctx, id, domain.DeviceWeb); err != nil {
			return err
		}
	}
	for _, id := range []domain.UserID{u1, u2} {
		if err := r.waitForOnline(ctx, id, r.cfg.OnlineTimeout); err != nil {
			return err
		}
	}

	r.note(u1, "Starting Deep Conversation Test...")
	if err := r.ops.MakeFriends(ctx, u1, u2); err != nil {
		return aborted(ctx)
	}
	r.operations.Add(2)
	if err := r.sleep(ctx, r.cfg.Settle); err != nil {
		return err
	}

	for i := 1; i <= r.cfg.Rounds; i++ {
		if ctx.Err() != nil {
			return aborted(ctx)
		}
		if i%2 != 0 {
			r.count(r.ops.SendMessage(u1, u2, fmt.Sprintf("Hey user %s, message #%d", u2, (i+1)/2)))
			r.deferSync(ctx, u2)
		} else {
			r.count(r.ops.SendMessage(u2, u1, fmt.Sprintf("Got it %s, reply #%d", u1, i/2)))
			r.deferSync(ctx, u1)
		}
		if err := r.randomSleep(ctx, r.cfg.TalkDelay); err != nil {
			return err
		}
	}

	r.note(u1, "Conversation Complete.")
	if err := r.sleep(ctx, r.cfg.Cooldown); err != nil {
		return err
	}
	r.disconnect(u1, u2)
	return nil
}

// groupStorm: an owner creates a group, members join, then everyone sends to
// the group concurrently.
func groupStorm(ctx context.Context, r *run, start domain.UserID) error {
	size := max(r.cfg.StormUsers, 1)
	owner := start
	members := make([]domain.UserID, 0, size-1)
	for i := 1; i < size; i++ {
		members = append(members, start+domain.UserID(i))
	}
	everyone := append(append([]domain.UserID{}, members...), owner)
	r.users(append([]domain.UserID{owner}, members...)...)

	if err := r.login(ctx, owner, domain.DeviceWeb); err != nil {
		return err
	}
	r.note(owner, "Starting Group Storm Test...")
	for _, m := range members {
		if err := r.login(ctx, m, domain.DeviceWeb); err != nil {
			return err
		}
		if err := r.sleep(ctx, r.cfg.LoginSpacing); err != nil {
			return err
		}
	}
	for _, id := range everyone {
		if err := r.waitForOnline(ctx, id, r.cfg.OnlineTimeout); err != nil {
			return err
		}
	}

	previous := uint64(0)
	if st, err := r.ops.Session(owner); err == nil {
		previous = st.LastGroupID
	}
	r.note(owner, "Creating Group '%s'...", stormGroupName)
	r.count(r.ops.CreateGroup(owner, stormGroupName))
	groupID, err := r.waitForGroup(ctx, owner, previous, r.cfg.GroupTimeout)
	if err != nil {
		return err
	}

	for _, m := range members {
		r.note(m, "Joining Group %d...", groupID)
		r.count(r.ops.JoinGroup(m, groupID))
		if err := r.randomSleep(ctx, r.cfg.JoinDelay); err != nil {
			return err
		}
	}

	r.note(owner, "Starting Message Storm...")
	g, gctx := errgroup.WithContext(ctx)
	for _, id := range everyone {
		g.Go(func() error {
			for k := 0; k < r.cfg.StormMessages; k++ {
				if gctx.Err() != nil {
					return aborted(gctx)
				}
				r.count(r.ops.SendGroupMessage(id, groupID, fmt.Sprintf("Storm Msg %d from %s", k, id)))
				if err := r.randomSleep(gctx, r.cfg.StormDelay); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	r.note(owner, "Storm Complete.")
	if err := r.sleep(ctx, r.cfg.Cooldown); err != nil {
		return err
	}
	r.disconnect(append([]domain.UserID{owner}, members...)...)
	return nil
}

// offlineBurst: a friend request and a burst of direct messages are sent
// while the recipient is offline, then delivery is confirmed after it returns.
func offlineBurst(ctx context.Context, r *run, start domain.UserID) error {
	u1, u2 := start, start+1
	r.users(u1, u2)

	for _, id := range []domain.UserID{u1, u2} {
		if err := r.login(ctx, id, domain.DeviceWeb); err != nil {
			return err
		}
	}
	for _, id := range []domain.UserID{u1, u2} {
		if err := r.waitForOnline(ctx, id, r.cfg.OnlineTimeout); err != nil {
			return err
		}
	}

	r.note(u1, "Ensuring clean slate (Delete Friend)...")
	r.count(r.ops.DeleteFriend(u1, u2))
	if err := r.sleep(ctx, r.cfg.Settle); err != nil {
		return err
	}

	r.note(u2, "Going offline for Friend Req test...")
	r.disconnect(u2)
	if err := r.sleep(ctx, r.cfg.Settle); err != nil {
		return err
	}

	r.note(u1, "Sending Offline Friend Request...")
	r.count(r.ops.ApplyFriend(u1, u2, "Let's test"))
	if err := r.sleep(ctx, r.cfg.Cooldown); err != nil {
		return err
	}

	r.note(u2, "User 2 Coming online to Accept...")
	if err := r.relogin(ctx, u2); err != nil {
		return err
	}

	r.note(u2, "Accepting Friend Request...")
	r.count(r.ops.HandleFriend(u2, u1, true))
	r.note(u1, "Waiting for Friend Approval Notification...")
	if err := r.waitForLogOrSync(ctx, u1, "Friend Request Accepted", r.cfg.ConfirmTimeout); err != nil {
		return err
	}
	r.note(u1, "Got Approval! Proceeding...")

	r.note(u2, "Going offline for Message Burst test...")
	r.disconnect(u2)
	if err := r.sleep(ctx, r.cfg.Settle); err != nil {
		return err
	}

	r.note(u1, "Sending %d buffer messages...", r.cfg.BurstMessages)
	pauseEvery := max(r.cfg.BurstPauseEvery, 1)
	for i := 0; i < r.cfg.BurstMessages; i++ {
		if ctx.Err() != nil {
			return aborted(ctx)
		}
		r.count(r.ops.SendMessage(u1, u2, fmt.Sprintf("Buffered Message #%d", i)))
		if i%pauseEvery == 0 {
			if err := r.sleep(ctx, r.cfg.BurstPause); err != nil {
				return err
			}
		}
	}

	r.note(u1, "Finished Sending. Waiting for U2...")
	if err := r.sleep(ctx, r.cfg.Settle); err != nil {
		return err
	}
	if err := r.relogin(ctx, u2); err != nil {
		return err
	}

	r.count(r.ops.Sync(u2))
	if r.cfg.BurstMessages > 0 {
		last := fmt.Sprintf("Buffered Message #%d", r.cfg.BurstMessages-1)
		if err := r.waitForLogOrSync(ctx, u2, last, r.cfg.ConfirmTimeout); err != nil {
			return err
		}
	}
	r.note(u2, "Synced messages. Check logs!")

	if err := r.sleep(ctx, r.cfg.Cooldown); err != nil {
		return err
	}
	r.disconnect(u1, u2)
	return nil
}

// multiDeviceKick logs the same user in twice with the same device type; the
// gateway is expected to kick the first transport.
func multiDeviceKick(ctx context.Context, r *run, start domain.UserID) error {
	u1 := start
	device := r.cfg.KickDevice
	if device == domain.DeviceUnknown {
		device = domain.DevicePC
	}
	r.users(u1)

	if err := r.login(ctx, u1, device); err != nil {
		return err
	}
	r.note(u1, "Step 1: Login as %s (Session A)...", device)
	if err := r.waitForOnline(ctx, u1, r.cfg.OnlineTimeout); err != nil {
		return err
	}
	if err := r.sleep(ctx, r.cfg.Cooldown); err != nil {
		return err
	}

	r.note(u1, "Step 2: Login as %s AGAIN (Session B)...", device)
	r.note(u1, "Expect Session A to be Kicked!")
	if err := r.login(ctx, u1, device); err != nil {
		return err
	}
	if err := r.sleep(ctx, r.cfg.Cooldown+r.cfg.Settle); err != nil {
		return err
	}

	if r.ops.HasLog(u1, "(Prev Session") {
		r.note(u1, "Test Complete. Session A was kicked.")
	} else {
		r.note(u1, "Test Complete. No kick observed for Session A.")
	}
	if err := r.sleep(ctx, r.cfg.Cooldown); err != nil {
		return err
	}
	r.disconnect(u1)
	return nil
}

func (r *run) relogin(ctx context.Context, id domain.UserID) error {
	if err := r.login(ctx, id, domain.DeviceWeb); err != nil {
		return err
	}
	if err := r.waitForOnline(ctx, id, r.cfg.OnlineTimeout); err != nil {
		return err
	}
	return r.sleep(ctx, r.cfg.Settle)
}
