package telegram

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	"partybot/internal/party"
	"partybot/internal/stamina"
	"partybot/internal/storage"
	"partybot/pkg/logx"
)

const formTTL = 10 * time.Minute

// Router maps Telegram updates onto the engine: commands, wizard
// callbacks, roster buttons and schedule-form replies.
//
// The only state it holds is the pending-form map: Telegram text replies
// carry no callback data, so the schedule-form token from the last
// wizard step is parked here per user until the reply arrives or the
// entry expires. The engine itself stays stateless.
type Router struct {
	adapter *Adapter
	store   storage.Store
	svc     *party.Service
	wiz     *party.Wizard
	regen   stamina.Config
	secret  string
	log     logx.Logger

	mu      sync.Mutex
	pending map[int64]pendingForm
}

type pendingForm struct {
	token   string
	expires time.Time
}

func NewRouter(adapter *Adapter, store storage.Store, svc *party.Service, wiz *party.Wizard, regen stamina.Config, adminSecret string, log logx.Logger) *Router {
	return &Router{
		adapter: adapter,
		store:   store,
		svc:     svc,
		wiz:     wiz,
		regen:   regen,
		secret:  adminSecret,
		log:     log,
		pending: map[int64]pendingForm{},
	}
}

// Register installs all handlers on the underlying bot.
func (r *Router) Register() {
	b := r.adapter.Bot()
	b.Handle("/start", r.onHelp)
	b.Handle("/help", r.onHelp)
	b.Handle("/claim", r.onClaim)
	b.Handle("/plan", r.onPlan)
	b.Handle("/parties", r.onParties)
	b.Handle("/stamina", r.onStamina)
	b.Handle("/setstamina", r.onSetStamina)
	b.Handle("/kick", r.onKick)
	b.Handle("/cancel", r.onCancel)
	b.Handle(tele.OnCallback, r.onCallback)
	b.Handle(tele.OnText, r.onText)
}

func (r *Router) onHelp(c tele.Context) error {
	return c.Send(strings.Join([]string{
		"Commands:",
		"/claim <name> — claim a member account",
		"/plan — schedule a party",
		"/parties — upcoming parties",
		"/stamina — your members' stamina",
	}, "\n"))
}

func (r *Router) onClaim(c tele.Context) error {
	name := strings.TrimSpace(strings.Join(c.Args(), " "))
	if name == "" {
		return c.Send("Usage: /claim <member name>")
	}
	m, err := r.store.ClaimMember(context.Background(), name, c.Sender().ID)
	if errors.Is(err, storage.ErrClaimed) {
		return c.Send(fmt.Sprintf("%s is already claimed by someone else.", name))
	}
	if err != nil {
		r.log.Error("claim failed", logx.Int64("user", c.Sender().ID), logx.Err(err))
		return c.Send("Something went wrong, try again.")
	}
	return c.Send(fmt.Sprintf("%s is yours.", m.Name))
}

func (r *Router) onPlan(c tele.Context) error {
	prompt, err := r.wiz.Begin(context.Background(), c.Sender().ID)
	if errors.Is(err, party.ErrNoLinkedAccount) {
		return c.Send("You haven't claimed a member yet. Use /claim <name> first.")
	}
	if err != nil {
		r.log.Error("wizard start failed", logx.Int64("user", c.Sender().ID), logx.Err(err))
		return c.Send("Something went wrong, try again.")
	}
	return r.sendPrompt(c, prompt)
}

func (r *Router) onParties(c tele.Context) error {
	list, err := r.svc.Upcoming(context.Background(), time.Now())
	if err != nil {
		r.log.Error("listing parties failed", logx.Err(err))
		return c.Send("Something went wrong, try again.")
	}
	if len(list) == 0 {
		return c.Send("Nothing scheduled. /plan one!")
	}
	var b strings.Builder
	for _, o := range list {
		title := o.Kind.Label
		if o.Activity.Detail != "" {
			title += " — " + o.Activity.Detail
		}
		fmt.Fprintf(&b, "• %s, %s (%d/%d)\n  %s\n  id: %s\n",
			title, o.Activity.ScheduledAt.UTC().Format("Mon 02 Jan 15:04 MST"),
			len(o.Participants), o.Kind.Capacity,
			strings.Join(o.Participants, ", "), o.Activity.ID)
	}
	return c.Send(b.String())
}

func (r *Router) onStamina(c tele.Context) error {
	members, err := r.store.MembersClaimedBy(context.Background(), c.Sender().ID)
	if err != nil {
		r.log.Error("listing members failed", logx.Err(err))
		return c.Send("Something went wrong, try again.")
	}
	if len(members) == 0 {
		return c.Send("You haven't claimed a member yet. Use /claim <name> first.")
	}
	now := time.Now()
	var b strings.Builder
	for _, m := range members {
		var at time.Time
		if m.StaminaAt != nil {
			at = *m.StaminaAt
		}
		level := stamina.Level(m.Stamina, at, now, r.regen.Period, r.regen.Cap)
		fmt.Fprintf(&b, "%s: %d/%d\n", m.Name, level, r.regen.Cap)
	}
	return c.Send(b.String())
}

// /setstamina <secret> <name> <value> is the authoritative baseline
// adjust. The store resets the notified level when the baseline drops
// below it.
func (r *Router) onSetStamina(c tele.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return c.Send("Usage: /setstamina <secret> <name> <value>")
	}
	if !r.adminOK(args[0]) {
		return c.Send("Not allowed.")
	}
	value, err := strconv.Atoi(args[len(args)-1])
	if err != nil || value < 0 || value > r.regen.Cap {
		return c.Send(fmt.Sprintf("Value must be 0..%d.", r.regen.Cap))
	}
	name := strings.Join(args[1:len(args)-1], " ")
	ctx := context.Background()
	m, err := r.store.MemberByName(ctx, name)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("No such member.")
	}
	if err != nil {
		r.log.Error("member lookup failed", logx.Err(err))
		return c.Send("Something went wrong, try again.")
	}
	if err := r.store.SetStamina(ctx, m.ID, value, time.Now()); err != nil {
		r.log.Error("set stamina failed", logx.Int64("member_id", m.ID), logx.Err(err))
		return c.Send("Something went wrong, try again.")
	}
	return c.Send(fmt.Sprintf("%s set to %d/%d.", m.Name, value, r.regen.Cap))
}

// /kick <secret> <party-id> <name>
func (r *Router) onKick(c tele.Context) error {
	args := c.Args()
	if len(args) < 3 {
		return c.Send("Usage: /kick <secret> <party-id> <member name>")
	}
	ctx := context.Background()
	m, err := r.store.MemberByName(ctx, strings.Join(args[2:], " "))
	if errors.Is(err, storage.ErrNotFound) {
		return c.Send("No such member.")
	}
	if err != nil {
		r.log.Error("member lookup failed", logx.Err(err))
		return c.Send("Something went wrong, try again.")
	}
	err = r.svc.Kick(ctx, args[1], m.ID, args[0])
	return c.Send(r.mutationReply(err, "Kicked."))
}

// /cancel <party-id> [secret], authorized by organizer identity or the
// admin secret.
func (r *Router) onCancel(c tele.Context) error {
	args := c.Args()
	if len(args) < 1 {
		return c.Send("Usage: /cancel <party-id> [secret]")
	}
	secret := ""
	if len(args) > 1 {
		secret = args[1]
	}
	err := r.svc.Delete(context.Background(), args[0], c.Sender().ID, secret)
	return c.Send(r.mutationReply(err, "Party cancelled."))
}

func (r *Router) onCallback(c tele.Context) error {
	cb := c.Callback()
	if cb == nil {
		return nil
	}
	data := strings.TrimPrefix(strings.TrimSpace(cb.Data), "\f")
	userID := cb.Sender.ID
	ctx := context.Background()

	switch {
	case strings.HasPrefix(data, party.NSWizard+":"):
		return r.onWizardStep(c, ctx, userID, data)
	case strings.HasPrefix(data, party.NSRoster+":"):
		return r.onRosterButton(c, ctx, userID, data)
	}
	return c.Respond(&tele.CallbackResponse{})
}

func (r *Router) onWizardStep(c tele.Context, ctx context.Context, userID int64, data string) error {
	prompt, err := r.wiz.Resume(ctx, userID, data)
	switch {
	case errors.Is(err, party.ErrUnauthorized):
		return c.Respond(&tele.CallbackResponse{Text: "That's not your wizard."})
	case errors.Is(err, party.ErrBadToken):
		return c.Respond(&tele.CallbackResponse{Text: "This button has expired."})
	case err != nil:
		r.log.Error("wizard step failed", logx.Int64("user", userID), logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: "Something went wrong."})
	}

	if prompt.AwaitText {
		r.setPending(userID, prompt.Token)
	}
	_ = c.Respond(&tele.CallbackResponse{})
	return c.Edit(prompt.Text, promptMarkup(prompt))
}

func (r *Router) onRosterButton(c tele.Context, ctx context.Context, userID int64, data string) error {
	parts := strings.SplitN(strings.TrimPrefix(data, party.NSRoster+":"), ":", 2)
	if len(parts) != 2 {
		return c.Respond(&tele.CallbackResponse{})
	}
	action, activityID := parts[0], parts[1]

	if action == party.ActionDelete {
		err := r.svc.Delete(ctx, activityID, userID, "")
		return c.Respond(&tele.CallbackResponse{Text: r.mutationReply(err, "Party cancelled.")})
	}

	members, err := r.store.MembersClaimedBy(ctx, userID)
	if err != nil {
		r.log.Error("listing members failed", logx.Err(err))
		return c.Respond(&tele.CallbackResponse{Text: "Something went wrong."})
	}
	if len(members) == 0 {
		return c.Respond(&tele.CallbackResponse{Text: "Claim a member first: /claim <name>"})
	}
	member := members[0]

	switch action {
	case party.ActionJoin:
		err = r.svc.Join(ctx, activityID, member.ID)
		return c.Respond(&tele.CallbackResponse{Text: r.mutationReply(err, "You're in, "+member.Name+"!")})
	case party.ActionLeave:
		err = r.svc.Leave(ctx, activityID, member.ID)
		return c.Respond(&tele.CallbackResponse{Text: r.mutationReply(err, "You're out.")})
	}
	return c.Respond(&tele.CallbackResponse{})
}

// onText completes a pending schedule form, if any.
func (r *Router) onText(c tele.Context) error {
	userID := c.Sender().ID
	token, ok := r.takePending(userID)
	if !ok {
		return nil
	}

	a, err := r.wiz.Submit(context.Background(), userID, token, c.Text())
	switch {
	case errors.Is(err, party.ErrInvalidDate):
		// Keep the form open so the user can just retype.
		r.setPending(userID, token)
		return c.Reply("Couldn't read that. Format: DD.MM.YYYY HH:MM [; detail] [; notes]")
	case errors.Is(err, party.ErrBadToken), errors.Is(err, party.ErrUnauthorized):
		return c.Reply("That form has expired. Start over with /plan.")
	case err != nil:
		r.log.Error("wizard submit failed", logx.Int64("user", userID), logx.Err(err))
		return c.Reply("Something went wrong, try again.")
	}

	kind := party.KindByID(a.Kind)
	label := a.Kind
	if kind != nil {
		label = kind.Label
	}
	return c.Reply(fmt.Sprintf("%s scheduled for %s. The roster is up in the party chat.",
		label, a.ScheduledAt.UTC().Format("Mon 02 Jan 15:04 MST")))
}

func (r *Router) adminOK(secret string) bool {
	if r.secret == "" || secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(r.secret)) == 1
}

func (r *Router) mutationReply(err error, ok string) string {
	switch {
	case err == nil:
		return ok
	case errors.Is(err, party.ErrNotFound):
		return "That party no longer exists."
	case errors.Is(err, party.ErrFull):
		return "Party is full."
	case errors.Is(err, party.ErrUnauthorized):
		return "Not allowed."
	default:
		r.log.Error("mutation failed", logx.Err(err))
		return "Something went wrong, try again."
	}
}

func (r *Router) sendPrompt(c tele.Context, p party.Prompt) error {
	if p.AwaitText {
		r.setPending(c.Sender().ID, p.Token)
	}
	return c.Send(p.Text, promptMarkup(p))
}

func promptMarkup(p party.Prompt) *tele.ReplyMarkup {
	return markup(party.Payload{Buttons: p.Buttons})
}

func (r *Router) setPending(userID int64, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[userID] = pendingForm{token: token, expires: time.Now().Add(formTTL)}
}

func (r *Router) takePending(userID int64) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pending[userID]
	if !ok {
		return "", false
	}
	delete(r.pending, userID)
	if time.Now().After(p.expires) {
		return "", false
	}
	return p.token, true
}
