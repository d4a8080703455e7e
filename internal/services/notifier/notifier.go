// Package notifier отправляет пользователям письма об изменении членства:
// о переходе на платный уровень и об окончании подписки.
package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/magabrotheeeer/membership-reconciler/internal/lib/sl"
	"github.com/magabrotheeeer/membership-reconciler/internal/lib/smtp"
	"github.com/magabrotheeeer/membership-reconciler/internal/models"
)

// jst — часовой пояс, в котором пользователям показываются даты.
var jst = time.FixedZone("JST", 9*60*60)

// Service формирует и отправляет письма по событиям models.MembershipChanged.
type Service struct {
	transport smtp.TransportInterface
	log       *slog.Logger
}

// New создает новый экземпляр Service.
func New(log *slog.Logger, transport smtp.TransportInterface) *Service {
	return &Service{
		transport: transport,
		log:       log,
	}
}

// HandleMembershipChanged обрабатывает одно сообщение из очереди уведомлений.
// События без адреса и события, о которых не пишем, подтверждаются без отправки.
func (s *Service) HandleMembershipChanged(_ context.Context, body []byte) error {
	const op = "notifier.HandleMembershipChanged"
	var ev models.MembershipChanged
	if err := json.Unmarshal(body, &ev); err != nil {
		s.log.Error("failed to unmarshal message body", sl.Err(err))
		return fmt.Errorf("%s: error unmarshalling message: %w", op, err)
	}

	log := s.log.With(slog.String("op", op), sl.UserID(ev.UserID), slog.String("event", ev.Event))
	if ev.Email == "" {
		log.Debug("membership change without email, skip")
		return nil
	}

	subject, text, ok := compose(ev)
	if !ok {
		log.Debug("membership change does not need notification",
			slog.String("from", ev.PreviousTier.String()), slog.String("to", ev.Tier.String()))
		return nil
	}

	if err := s.sendEmail([]string{ev.Email}, subject, text); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	log.Info("membership notification sent", slog.String("tier", ev.Tier.String()))
	return nil
}

func compose(ev models.MembershipChanged) (subject, text string, ok bool) {
	switch {
	case ev.LapsedToFree():
		return "【会員情報】サブスクリプションの有効期限が終了しました",
			"いつも広東語発音学習サイトをご利用いただきありがとうございます。\n\n" +
				"ご契約中のサブスクリプションの有効期限が終了したため、会員種別が無料会員に変更されました。\n" +
				"引き続きすべての機能をご利用いただくには、会員ページから再度ご登録ください。", true
	case ev.Activated() && ev.Tier == models.TierLifetime:
		return "【会員情報】永久会員へのご登録ありがとうございます",
			"永久会員のご購入が完了しました。\n\n" +
				"これからは期限なくすべての機能をご利用いただけます。", true
	case ev.Activated():
		until := "次回更新日"
		if ev.ExpiresAt != nil {
			until = ev.ExpiresAt.In(jst).Format("2006年1月2日 15:04")
		}
		return "【会員情報】サブスクリプションへのご登録ありがとうございます",
			"サブスクリプションのお支払いが確認できました。\n\n" +
				"有効期限: " + until + "（日本時間）\n" +
				"期限までにすべての機能をご利用いただけます。", true
	}
	return "", "", false
}

func (s *Service) sendEmail(to []string, subject, bodyText string) error {
	msg := strings.Join([]string{
		"From: " + s.transport.GetSMTPUser(),
		"To: " + strings.Join(to, ";"),
		"Subject: " + mime.BEncoding.Encode("UTF-8", subject),
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=\"UTF-8\"",
		"Content-Transfer-Encoding: 8bit",
		"",
		bodyText,
	}, "\r\n")

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", slog.String("from", s.transport.GetSMTPUser()), sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", slog.String("recipient", addr), sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	if _, err = wc.Write([]byte(msg)); err != nil {
		s.log.Error("failed to write email body", sl.Err(err))
		return err
	}

	if err = wc.Close(); err != nil {
		s.log.Error("failed to close Data writer", sl.Err(err))
		return err
	}

	if err = client.Quit(); err != nil {
		s.log.Error("failed to quit SMTP client", sl.Err(err))
		return err
	}

	return nil
}
