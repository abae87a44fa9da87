// Package services реализует отправителя писем: разбирает сообщения
// из очереди уведомлений, рендерит шаблон по тарифу и отправляет письмо
// через SMTP.
package services

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	smtptransport "github.com/phoenix-invest/phoenix-crm/internal/lib/smtp"
	"github.com/phoenix-invest/phoenix-crm/internal/lib/sl"
	"github.com/phoenix-invest/phoenix-crm/internal/models"
)

// contractFreeTier тариф, для которого не прикладывается договор
// и не указывается шаг с ACEITE.
const contractFreeTier = "Clube"

// SenderService отправляет письма из очереди уведомлений.
type SenderService struct {
	transport    smtptransport.TransportInterface
	tierLinks    map[string]string
	contractPath string
	log          *slog.Logger
}

// NewSenderService создает новый экземпляр SenderService.
// tierLinks — ссылки-приглашения в группы Telegram по тарифам,
// contractPath — путь к PDF договора для приветственных писем.
func NewSenderService(transport smtptransport.TransportInterface, tierLinks map[string]string, contractPath string, log *slog.Logger) *SenderService {
	return &SenderService{
		transport:    transport,
		tierLinks:    tierLinks,
		contractPath: contractPath,
		log:          log,
	}
}

// SendWelcomeEmail отправляет приветственное письмо по одному тарифу.
func (s *SenderService) SendWelcomeEmail(body []byte) error {
	var notice models.EmailNotice
	if err := json.Unmarshal(body, &notice); err != nil {
		s.log.Error("failed to unmarshal welcome notice", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject := fmt.Sprintf("Bem-vindo(a) — %s", notice.Tier)
	bodyHTML := s.renderWelcome(notice)
	attachment, filename := s.contractAttachment(notice.Tier)

	if err := s.sendEmail([]string{notice.Email}, subject, bodyHTML, attachment, filename); err != nil {
		return err
	}
	s.log.Info("welcome email sent",
		slog.String("message_id", notice.MessageID),
		slog.Int("client_id", notice.ClientID),
		slog.String("tier", notice.Tier),
		slog.Bool("contract_attached", attachment != nil))
	return nil
}

// contractAttachment возвращает содержимое PDF договора для тарифов,
// которым он прикладывается. Письмо уходит и без вложения, если файл
// недоступен: шаг с ACEITE тогда решает поддержка.
func (s *SenderService) contractAttachment(tier string) ([]byte, string) {
	if tier == contractFreeTier || s.contractPath == "" {
		return nil, ""
	}
	data, err := os.ReadFile(s.contractPath)
	if err != nil {
		s.log.Warn("failed to read contract file, sending without attachment",
			slog.String("path", s.contractPath), sl.Err(err))
		return nil, ""
	}
	return data, filepath.Base(s.contractPath)
}

// SendRenewalEmail отправляет напоминание о скором окончании вигенции.
func (s *SenderService) SendRenewalEmail(body []byte) error {
	var notice models.EmailNotice
	if err := json.Unmarshal(body, &notice); err != nil {
		s.log.Error("failed to unmarshal renewal notice", sl.Err(err))
		return fmt.Errorf("error unmarshalling message: %w", err)
	}

	subject := "Sua assinatura do Projeto Phoenix está vencendo"
	bodyHTML := fmt.Sprintf(`<h2>Olá %s!</h2>
<p>Sua assinatura (<b>%s</b>) vence em <b>%d dias</b>, no dia <b>%s</b>.</p>
<p>Renove com antecedência para não perder o acesso aos grupos e relatórios.</p>
<p>Qualquer dúvida, responda este e-mail.<br>Equipe 1 Milhão Invest</p>`,
		notice.Name, notice.Tier, notice.LeadDays, notice.PeriodEnd.Format("02/01/2006"))

	if err := s.sendEmail([]string{notice.Email}, subject, bodyHTML, nil, ""); err != nil {
		return err
	}
	s.log.Info("renewal email sent",
		slog.String("message_id", notice.MessageID),
		slog.Int("client_id", notice.ClientID),
		slog.Int("lead_days", notice.LeadDays))
	return nil
}

// renderWelcome собирает HTML приветственного письма. Для всех тарифов,
// кроме Clube, письмо содержит шаги с договором и ссылку на группу.
func (s *SenderService) renderWelcome(notice models.EmailNotice) string {
	start := notice.PeriodStart.Format("02/01/2006")
	end := notice.PeriodEnd.Format("02/01/2006")

	if notice.Tier == contractFreeTier {
		return fmt.Sprintf(`<h2>🏆 Olá %s!</h2>
<p>Bem-vindo(a) ao <b>%s</b>.</p>
<p>Nossa equipe fará contato exclusivo com você para os próximos passos.</p>
<p>Conte conosco!<br>Equipe 1 Milhão Invest</p>`, notice.Name, notice.Tier)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "<h2>👋 Olá %s!</h2>\n", notice.Name)
	fmt.Fprintf(&b, "<p>Que bom ter você conosco na carteira <b>%s</b>. 🧠📈</p>\n", notice.Tier)
	fmt.Fprintf(&b, "<p><b>Vigência do contrato:</b> %s a %s</p>\n", start, end)
	b.WriteString("<h3>✅ Passos iniciais</h3>\n<ol>\n")
	b.WriteString("  <li>Leia o contrato e responda este e-mail com <b>ACEITE</b></li>\n")
	if link, ok := s.tierLinks[notice.Tier]; ok && link != "" {
		fmt.Fprintf(&b, "  <li>Entre no grupo exclusivo do Telegram: <a href=\"%s\">Entrar no Grupo</a></li>\n", link)
	} else {
		b.WriteString("  <li>Aguarde o link do grupo exclusivo do Telegram, que será enviado pelo suporte</li>\n")
	}
	b.WriteString("</ol>\n")
	b.WriteString("<p>Bem-vindo(a) ao próximo nível!<br>Equipe 1 Milhão Invest</p>")
	return b.String()
}

// buildMessage собирает MIME-сообщение. Без вложения — одиночная
// HTML-часть, с вложением — multipart/mixed с base64-кодированным PDF.
func (s *SenderService) buildMessage(to []string, subject, bodyHTML string, attachment []byte, filename string) ([]byte, error) {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "From: %s\r\n", s.transport.GetSMTPUser())
	fmt.Fprintf(&buf, "To: %s\r\n", strings.Join(to, ";"))
	fmt.Fprintf(&buf, "Subject: %s\r\n", subject)
	buf.WriteString("MIME-Version: 1.0\r\n")

	if attachment == nil {
		buf.WriteString("Content-Type: text/html; charset=\"UTF-8\"\r\n\r\n")
		buf.WriteString(bodyHTML)
		return buf.Bytes(), nil
	}

	w := multipart.NewWriter(&buf)
	fmt.Fprintf(&buf, "Content-Type: multipart/mixed; boundary=%s\r\n\r\n", w.Boundary())

	htmlPart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type": {"text/html; charset=\"UTF-8\""},
	})
	if err != nil {
		return nil, err
	}
	if _, err := htmlPart.Write([]byte(bodyHTML)); err != nil {
		return nil, err
	}

	filePart, err := w.CreatePart(textproto.MIMEHeader{
		"Content-Type":              {"application/pdf"},
		"Content-Transfer-Encoding": {"base64"},
		"Content-Disposition":       {fmt.Sprintf("attachment; filename=%q", filename)},
	})
	if err != nil {
		return nil, err
	}
	if _, err := filePart.Write([]byte(base64.StdEncoding.EncodeToString(attachment))); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *SenderService) sendEmail(to []string, subject, bodyHTML string, attachment []byte, filename string) error {
	msg, err := s.buildMessage(to, subject, bodyHTML, attachment, filename)
	if err != nil {
		s.log.Error("failed to build email message", sl.Err(err))
		return err
	}

	client, err := s.transport.Connect()
	if err != nil {
		s.log.Error("failed to connect to SMTP server", sl.Err(err))
		return err
	}
	defer client.Close()

	if err := client.Mail(s.transport.GetSMTPUser()); err != nil {
		s.log.Error("failed to set MAIL FROM", "from", s.transport.GetSMTPUser(), "error", sl.Err(err))
		return err
	}

	for _, addr := range to {
		if err := client.Rcpt(addr); err != nil {
			s.log.Error("failed to set RCPT TO", "recipient", addr, "error", sl.Err(err))
			return err
		}
	}

	wc, err := client.Data()
	if err != nil {
		s.log.Error("failed to get Data writer", sl.Err(err))
		return err
	}

	_, err = wc.Write(msg)
	if err != nil {
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

	s.log.Info("email sent successfully", "to", to)
	return nil
}
