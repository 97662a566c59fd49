// Package email sends transactional email through Postmark, or to disk with
// DevSender when no Postmark token is configured.
//
//	sender, err := email.NewSender(cfg)
//	if err != nil {
//	    return err
//	}
//	err = sender.SendEmail(ctx, email.SendEmailParams{
//	    SendTo:   "user@example.com",
//	    Subject:  "Reminder",
//	    BodyText: "Call mom",
//	})
//
// Errors wrap ErrInvalidConfig, ErrInvalidParams or ErrFailedToSendEmail.
package email
