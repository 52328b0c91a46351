package bot

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"

	"github.com/susu3304/tabiwari/internal/flow"
	"github.com/susu3304/tabiwari/internal/session"
	"github.com/susu3304/tabiwari/internal/telegram"
)

// HandleUpdate processes one webhook update start to finish. It runs on its
// own context so a closed webhook connection cannot cancel a turn halfway
// through a state write.
func (b *Bot) HandleUpdate(upd telegram.Update) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	switch {
	case upd.CallbackQuery != nil:
		b.handleCallback(ctx, upd.CallbackQuery)
	case upd.Message != nil:
		b.handleMessage(ctx, upd.Message)
	}
}

func senderFor(from *telegram.User, chat telegram.Chat) flow.Sender {
	return flow.Sender{
		Key: session.Key{
			UserID: strconv.FormatInt(from.ID, 10),
			ChatID: strconv.FormatInt(chat.ID, 10),
		},
		ChatType: chat.Type,
		Name:     from.FirstName,
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *telegram.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	sender := senderFor(msg.From, msg.Chat)
	unlock := b.store.Lock(sender.Key)
	defer unlock()

	var reply flow.Reply
	var err error
	switch {
	case len(msg.Photo) > 0:
		reply, err = b.handlePhoto(ctx, sender, msg)
	case strings.HasPrefix(strings.TrimSpace(msg.Text), "/"):
		command, args := splitCommand(msg.Text)
		reply, err = b.flows.HandleCommand(ctx, sender, command, args)
	case strings.TrimSpace(msg.Text) != "":
		reply, err = b.flows.HandleText(ctx, sender, msg.Text)
	default:
		return
	}
	if err != nil {
		b.reportError(ctx, msg.Chat.ID, err)
		return
	}
	b.send(ctx, msg.Chat.ID, reply)
}

func (b *Bot) handlePhoto(ctx context.Context, sender flow.Sender, msg *telegram.Message) (flow.Reply, error) {
	// Telegram lists sizes smallest first; take the largest for extraction.
	photo := msg.Photo[len(msg.Photo)-1]
	file, err := b.client.GetFile(ctx, photo.FileID)
	if err != nil {
		return flow.Reply{}, &flow.TransientIOError{Op: "downloading your photo", Err: err}
	}
	data, err := b.client.DownloadFile(ctx, file.FilePath)
	if err != nil {
		return flow.Reply{}, &flow.TransientIOError{Op: "downloading your photo", Err: err}
	}
	return b.flows.HandlePhoto(ctx, sender, data, "image/jpeg")
}

func (b *Bot) handleCallback(ctx context.Context, cb *telegram.CallbackQuery) {
	if cb.Message == nil {
		if err := b.client.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
			log.Printf("bot: failed to answer callback %s: %v", cb.ID, err)
		}
		return
	}
	sender := senderFor(&cb.From, cb.Message.Chat)
	unlock := b.store.Lock(sender.Key)
	defer unlock()

	reply, err := b.flows.HandleCallback(ctx, sender, cb.Data)
	if err != nil {
		// A tap that no longer fits the conversation only needs a toast.
		var sm *flow.StateMismatchError
		if errors.As(err, &sm) {
			if aerr := b.client.AnswerCallbackQuery(ctx, cb.ID, sm.Message); aerr != nil {
				log.Printf("bot: failed to answer callback %s: %v", cb.ID, aerr)
			}
			return
		}
		if aerr := b.client.AnswerCallbackQuery(ctx, cb.ID, ""); aerr != nil {
			log.Printf("bot: failed to answer callback %s: %v", cb.ID, aerr)
		}
		b.reportError(ctx, cb.Message.Chat.ID, err)
		return
	}
	if aerr := b.client.AnswerCallbackQuery(ctx, cb.ID, ""); aerr != nil {
		log.Printf("bot: failed to answer callback %s: %v", cb.ID, aerr)
	}

	// Participant toggles redraw the keyboard on the prompt message instead
	// of stacking a new prompt per tap.
	if strings.HasPrefix(cb.Data, "psel:") && len(reply.Buttons) > 0 {
		err := b.client.EditMessageReplyMarkup(ctx, cb.Message.Chat.ID, cb.Message.MessageID, keyboardFor(reply.Buttons))
		if err != nil {
			log.Printf("bot: failed to edit keyboard in chat %d: %v", cb.Message.Chat.ID, err)
		}
		return
	}
	b.send(ctx, cb.Message.Chat.ID, reply)
}

// splitCommand parses "/balance@tabiwari_bot Alice" into ("balance", "Alice").
func splitCommand(text string) (string, string) {
	rest := strings.TrimPrefix(strings.TrimSpace(text), "/")
	var args string
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		rest, args = rest[:i], strings.TrimSpace(rest[i+1:])
	}
	if j := strings.Index(rest, "@"); j >= 0 {
		rest = rest[:j]
	}
	return strings.ToLower(rest), args
}

func keyboardFor(rows [][]flow.Button) telegram.InlineKeyboardMarkup {
	kb := telegram.InlineKeyboardMarkup{
		InlineKeyboard: make([][]telegram.InlineKeyboardButton, 0, len(rows)),
	}
	for _, row := range rows {
		buttons := make([]telegram.InlineKeyboardButton, 0, len(row))
		for _, btn := range row {
			buttons = append(buttons, telegram.InlineKeyboardButton{
				Text:         btn.Label,
				CallbackData: btn.Data,
			})
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, buttons)
	}
	return kb
}

func (b *Bot) send(ctx context.Context, chatID int64, reply flow.Reply) {
	if reply.Text == "" {
		return
	}
	var err error
	if len(reply.Buttons) > 0 {
		_, err = b.client.SendMessageWithKeyboard(ctx, chatID, reply.Text, keyboardFor(reply.Buttons))
	} else {
		_, err = b.client.SendMessage(ctx, chatID, reply.Text)
	}
	if err != nil {
		log.Printf("bot: failed to send message to chat %d: %v", chatID, err)
	}
}

// reportError turns a failed turn into a chat message. User mistakes speak
// for themselves; anything else is an operational failure worth a log line.
func (b *Bot) reportError(ctx context.Context, chatID int64, err error) {
	var ve *flow.ValidationError
	var nf *flow.NotFoundError
	var sm *flow.StateMismatchError
	if !errors.As(err, &ve) && !errors.As(err, &nf) && !errors.As(err, &sm) {
		log.Printf("bot: turn failed in chat %d: %v", chatID, err)
	}
	b.send(ctx, chatID, flow.Reply{Text: flow.UserMessage(err)})
}
