// seed inserts development sample data: two users, an accepted meeting starting in two minutes,
// an overdue assignment, and the default room policy. It prints participant tokens and the room
// to join. Idempotent: skips inserts if the dev requester (alice@example.com) already exists.
//
// When JWT_PRIVATE_KEY is unset a development key is generated and printed; add it to .env so
// the server accepts the printed tokens.
package main

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"emeet/backend/internal/config"
	"emeet/backend/internal/db"
	meetingrepo "emeet/backend/internal/meeting/repository"
	"emeet/backend/internal/meeting/service"
	"emeet/backend/internal/notification"
	policydomain "emeet/backend/internal/policy/domain"
	"emeet/backend/internal/policy/engine"
	policyrepo "emeet/backend/internal/policy/repository"
	"emeet/backend/internal/security"
	userdomain "emeet/backend/internal/user/domain"
	userrepo "emeet/backend/internal/user/repository"
)

const (
	requesterID    = "dev-alice"
	requesterEmail = "alice@example.com"
	hostID         = "dev-bob"
	hostEmail      = "bob@example.com"
	devPolicyID    = "dev-policy-001"
	devAssignment  = "dev-assignment-001"
	devSubmission  = "dev-submission-001"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set; add it to .env or the environment")
	}

	conn, err := db.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer conn.Close()

	ctx := context.Background()
	users := userrepo.NewPostgresRepository(conn)

	existing, err := users.GetByEmail(ctx, requesterEmail)
	if err != nil {
		log.Fatalf("seed check: %v", err)
	}
	if existing != nil {
		log.Printf("Seed already applied (%s exists). Skipping.", requesterEmail)
		os.Exit(0)
	}

	now := time.Now().UTC()
	for _, u := range []*userdomain.User{
		{ID: requesterID, Email: requesterEmail, DisplayName: "Alice", CreatedAt: now},
		{ID: hostID, Email: hostEmail, DisplayName: "Bob", CreatedAt: now},
	} {
		if err := users.Upsert(ctx, u); err != nil {
			log.Fatalf("create user %s: %v", u.Email, err)
		}
	}

	if err := policyrepo.NewPostgresRepository(conn).Create(ctx, &policydomain.Policy{
		ID:        devPolicyID,
		Name:      "participants only",
		Rules:     engine.DefaultPolicy(),
		Enabled:   true,
		CreatedAt: now,
	}); err != nil {
		log.Fatalf("create policy: %v", err)
	}

	svc := service.NewMeetingService(meetingrepo.NewPostgresRepository(conn), users, notification.LogNotifier{}, nil)
	req, err := svc.RequestMeeting(ctx, requesterID, hostID, "Walk through the quarterly review")
	if err != nil {
		log.Fatalf("request meeting: %v", err)
	}
	sess, err := svc.Accept(ctx, req.ID, hostID, now.Add(2*time.Minute), 30)
	if err != nil {
		log.Fatalf("accept meeting: %v", err)
	}

	if _, err := conn.ExecContext(ctx,
		`INSERT INTO assignments (id, title, deadline, is_open, created_at) VALUES ($1, $2, $3, TRUE, $4)`,
		devAssignment, "Reading response", now.Add(-time.Hour), now.Add(-48*time.Hour)); err != nil {
		log.Fatalf("create assignment: %v", err)
	}
	if _, err := conn.ExecContext(ctx,
		`INSERT INTO assignment_submissions (id, assignment_id, student_id, status) VALUES ($1, $2, $3, 'pending')`,
		devSubmission, devAssignment, requesterID); err != nil {
		log.Fatalf("create submission: %v", err)
	}

	tokens, generated := tokenProvider(cfg)

	log.Println("Seed completed successfully.")
	fmt.Printf("Meeting %s starts %s for 30 minutes\n", sess.ID, sess.StartAt.Format(time.RFC3339))
	fmt.Printf("Room: /ws/rooms/%s  password: %s\n", sess.RoomID(), sess.Secret)
	for _, u := range []struct{ id, name string }{{requesterID, "Alice"}, {hostID, "Bob"}} {
		tok, _, err := tokens.IssueAccess(u.id, u.name)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Printf("%s token: %s\n", u.name, tok)
	}
	if generated != "" {
		fmt.Println("Add this development key to .env so the server accepts the tokens above:")
		fmt.Printf("JWT_PRIVATE_KEY=%s\n", generated)
	}
}

// tokenProvider uses the configured signing key, or generates an ES256 development key and
// returns it in .env form.
func tokenProvider(cfg *config.Config) (*security.TokenProvider, string) {
	var (
		priv      crypto.Signer
		generated string
	)
	if strings.TrimSpace(cfg.JWTPrivateKey) != "" {
		p, _, err := security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			log.Fatalf("jwt keys: %v", err)
		}
		priv = p
	} else {
		key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			log.Fatalf("generate key: %v", err)
		}
		pemText, err := security.EncodePrivateKey(key)
		if err != nil {
			log.Fatalf("encode key: %v", err)
		}
		priv = key
		generated = strings.ReplaceAll(strings.TrimSpace(pemText), "\n", `\n`)
	}
	tokens, err := security.NewTokenProvider(priv, nil, cfg.JWTIssuer, cfg.JWTAudience, 24*time.Hour)
	if err != nil {
		log.Fatalf("jwt: %v", err)
	}
	return tokens, generated
}
