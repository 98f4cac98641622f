package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"time"

	"github.com/mrz1836/postmark"
	"github.com/pkg/errors"
)

const otpSubject = "Your One-Time Password (OTP) for Verification"

var otpTemplate = template.Must(template.New("otp").Parse(`
<div style="font-family: 'Inter', sans-serif; background-color: #f7f7f7; padding: 20px; border-radius: 10px; max-width: 600px; margin: auto; box-shadow: 0 4px 8px rgba(0,0,0,0.1);">
    <div style="text-align: center; margin-bottom: 30px;">
        <h1 style="color: #333; font-size: 28px; margin-bottom: 10px;">Account Verification</h1>
        <p style="color: #555; font-size: 16px;">Hello {{.Handle}},</p>
    </div>

    <div style="background-color: #ffffff; padding: 30px; border-radius: 8px; border: 1px solid #ddd; text-align: center;">
        <p style="font-size: 18px; color: #333; line-height: 1.6;">
            You have requested a One-Time Password (OTP) to verify your account.
            Please use the following OTP to complete your action:
        </p>
        <div style="margin: 30px 0; padding: 15px 25px; background-color: #e0f2f7; border-left: 5px solid #007bff; border-radius: 5px; display: inline-block;">
            <strong style="font-size: 32px; color: #007bff; letter-spacing: 3px;">{{.Code}}</strong>
        </div>
        <p style="font-size: 16px; color: #555;">
            This OTP is valid for a short period and will expire soon.
        </p>
    </div>

    <div style="background-color: #fff3cd; color: #856404; border: 1px solid #ffeeba; border-radius: 8px; padding: 15px; margin-top: 25px; text-align: left;">
        <p style="font-size: 16px; font-weight: bold; margin-bottom: 10px;">&#9888;&#65039; Security Warning &#9888;&#65039;</p>
        <ul style="margin: 0; padding-left: 20px; list-style-type: disc;">
            <li><strong>DO NOT share this OTP with anyone.</strong> We will never ask for your OTP.</li>
            <li>If you did not request this OTP, please ignore this email.</li>
            <li>Beware of phishing attempts. Always verify the sender.</li>
        </ul>
    </div>

    <div style="text-align: center; margin-top: 30px; font-size: 14px; color: #888;">
        <p>Thank you for using our service!</p>
        <p>&copy; {{.Year}} Acadnet. All rights reserved.</p>
    </div>
</div>
`))

// PostmarkSender delivers OTP mail through the Postmark API.
type PostmarkSender struct {
	client      *postmark.Client
	senderEmail string
}

// NewPostmarkSender creates a Postmark-backed Sender. Both tokens come from
// the Postmark dashboard; senderEmail must be a verified sender signature.
func NewPostmarkSender(serverToken, accountToken, senderEmail string) *PostmarkSender {
	return &PostmarkSender{
		client:      postmark.NewClient(serverToken, accountToken),
		senderEmail: senderEmail,
	}
}

func (s *PostmarkSender) SendOTP(ctx context.Context, recipientEmail, handle, code string) error {
	var body bytes.Buffer
	err := otpTemplate.Execute(&body, struct {
		Handle string
		Code   string
		Year   int
	}{Handle: handle, Code: code, Year: time.Now().Year()})
	if err != nil {
		return errors.Wrap(err, "[SendOTP] render template")
	}

	resp, err := s.client.SendEmail(ctx, postmark.Email{
		From:     fmt.Sprintf("Acadnet <%s>", s.senderEmail),
		To:       recipientEmail,
		Subject:  otpSubject,
		Tag:      "otp",
		HTMLBody: body.String(),
	})
	if err != nil {
		return errors.Wrap(DeliveryFailedErr, err.Error())
	}
	if resp.ErrorCode != 0 {
		return errors.Wrapf(DeliveryFailedErr, "postmark error %d: %s", resp.ErrorCode, resp.Message)
	}
	return nil
}
