package db

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"finker/internal/errs"
	"finker/internal/models"
)

func testDB(t *testing.T) *Database {
	t.Helper()
	database, err := New(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { database.Close() })
	return database
}

func testUser(t *testing.T, database *Database, username string) *models.User {
	t.Helper()
	user, err := database.CreateUser(username, "hash")
	if err != nil {
		t.Fatal(err)
	}
	return user
}

func TestCreateUser(t *testing.T) {
	database := testDB(t)

	t.Run("should lowercase the username", func(t *testing.T) {
		req := require.New(t)
		user, err := database.CreateUser("Alice", "hash")
		req.NoError(err)
		req.Equal("alice", user.Username)

		found, err := database.GetUserByUsername("ALICE")
		req.NoError(err)
		req.Equal(user.ID, found.ID)
	})

	t.Run("should reject a duplicate username", func(t *testing.T) {
		req := require.New(t)
		_, err := database.CreateUser("alice", "otherhash")
		req.ErrorIs(err, errs.ErrUsernameTaken)
	})

	t.Run("should report an unknown username as not found", func(t *testing.T) {
		req := require.New(t)
		_, err := database.GetUserByUsername("nobody")
		req.ErrorIs(err, errs.ErrNotFound)
	})
}

func TestResolveOrCreateConversation(t *testing.T) {
	database := testDB(t)
	alice := testUser(t, database, "alice")
	bob := testUser(t, database, "bob")

	t.Run("should return an owned conversation as-is", func(t *testing.T) {
		req := require.New(t)
		conv, err := database.CreateConversation(alice.ID, "ML basics")
		req.NoError(err)

		id, err := database.ResolveOrCreateConversation(alice.ID, conv.ID)
		req.NoError(err)
		req.Equal(conv.ID, id)
	})

	t.Run("should create a fresh conversation when no id is given", func(t *testing.T) {
		req := require.New(t)
		id, err := database.ResolveOrCreateConversation(alice.ID, 0)
		req.NoError(err)

		conv, err := database.GetConversation(id, alice.ID)
		req.NoError(err)
		req.Equal(DefaultTitle, conv.Title)
	})

	t.Run("should fall back to creation for a foreign conversation", func(t *testing.T) {
		req := require.New(t)
		bobsConv, err := database.CreateConversation(bob.ID, "Bob's secrets")
		req.NoError(err)

		id, err := database.ResolveOrCreateConversation(alice.ID, bobsConv.ID)
		req.NoError(err)
		req.NotEqual(bobsConv.ID, id)

		conv, err := database.GetConversation(id, alice.ID)
		req.NoError(err)
		req.Equal(alice.ID, conv.UserID)
	})

	t.Run("should fall back to creation for an unknown id", func(t *testing.T) {
		req := require.New(t)
		id, err := database.ResolveOrCreateConversation(alice.ID, 99999)
		req.NoError(err)
		req.NotEqual(int64(99999), id)
	})
}

func TestMessageOrdering(t *testing.T) {
	req := require.New(t)
	database := testDB(t)
	alice := testUser(t, database, "alice")
	conv, err := database.CreateConversation(alice.ID, "ordering")
	req.NoError(err)

	var want []string
	for i := 0; i < 10; i++ {
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		content := fmt.Sprintf("turn %d", i)
		want = append(want, content)
		msg := &models.Message{ConvID: conv.ID, UserID: alice.ID, Role: role, Content: content}
		req.NoError(database.SaveMessage(msg))
		req.Positive(msg.ID)
	}

	history, err := database.GetConversationHistory(conv.ID, alice.ID)
	req.NoError(err)
	req.Len(history, 10)
	for i, msg := range history {
		req.Equal(want[i], msg.Content)
	}
}

func TestGetConversationHistory_ForeignConversation(t *testing.T) {
	req := require.New(t)
	database := testDB(t)
	alice := testUser(t, database, "alice")
	bob := testUser(t, database, "bob")

	conv, err := database.CreateConversation(bob.ID, "private")
	req.NoError(err)
	req.NoError(database.SaveMessage(&models.Message{ConvID: conv.ID, UserID: bob.ID, Role: models.RoleUser, Content: "hi"}))

	// The ownership join yields nothing, not an error and not Bob's rows.
	history, err := database.GetConversationHistory(conv.ID, alice.ID)
	req.NoError(err)
	req.Empty(history)
}

func TestTouchConversation(t *testing.T) {
	database := testDB(t)
	alice := testUser(t, database, "alice")
	bob := testUser(t, database, "bob")

	t.Run("should strictly increase updated_at", func(t *testing.T) {
		req := require.New(t)
		conv, err := database.CreateConversation(alice.ID, "recency")
		req.NoError(err)

		touched, err := database.TouchConversation(conv.ID, alice.ID)
		req.NoError(err)
		req.True(touched.UpdatedAt.After(conv.UpdatedAt))
	})

	t.Run("should refuse a foreign conversation", func(t *testing.T) {
		req := require.New(t)
		conv, err := database.CreateConversation(alice.ID, "mine")
		req.NoError(err)

		_, err = database.TouchConversation(conv.ID, bob.ID)
		req.ErrorIs(err, errs.ErrNotFound)
	})
}

func TestListConversations_RecencyOrder(t *testing.T) {
	req := require.New(t)
	database := testDB(t)
	alice := testUser(t, database, "alice")

	first, err := database.CreateConversation(alice.ID, "first")
	req.NoError(err)
	second, err := database.CreateConversation(alice.ID, "second")
	req.NoError(err)

	// Touching the older conversation moves it to the front.
	_, err = database.TouchConversation(first.ID, alice.ID)
	req.NoError(err)

	conversations, err := database.ListConversations(alice.ID)
	req.NoError(err)
	req.Len(conversations, 2)
	req.Equal(first.ID, conversations[0].ID)
	req.Equal(second.ID, conversations[1].ID)
}

func TestRenameConversation(t *testing.T) {
	database := testDB(t)
	alice := testUser(t, database, "alice")
	bob := testUser(t, database, "bob")

	t.Run("should rename an owned conversation", func(t *testing.T) {
		req := require.New(t)
		conv, err := database.CreateConversation(alice.ID, "old title")
		req.NoError(err)

		renamed, err := database.RenameConversation(conv.ID, alice.ID, "new title")
		req.NoError(err)
		req.Equal("new title", renamed.Title)
		req.True(renamed.UpdatedAt.After(conv.UpdatedAt))
	})

	t.Run("should refuse a foreign conversation", func(t *testing.T) {
		req := require.New(t)
		conv, err := database.CreateConversation(alice.ID, "mine")
		req.NoError(err)

		_, err = database.RenameConversation(conv.ID, bob.ID, "stolen")
		req.ErrorIs(err, errs.ErrNotFound)
	})
}

func TestDeleteConversation_Cascade(t *testing.T) {
	req := require.New(t)
	database := testDB(t)
	alice := testUser(t, database, "alice")

	conv, err := database.CreateConversation(alice.ID, "doomed")
	req.NoError(err)
	for i := 0; i < 3; i++ {
		req.NoError(database.SaveMessage(&models.Message{
			ConvID: conv.ID, UserID: alice.ID, Role: models.RoleUser, Content: fmt.Sprintf("msg %d", i),
		}))
	}

	req.NoError(database.DeleteConversation(conv.ID, alice.ID))

	_, err = database.GetConversation(conv.ID, alice.ID)
	req.ErrorIs(err, errs.ErrNotFound)

	var count int
	req.NoError(database.db.QueryRow(`SELECT COUNT(*) FROM messages WHERE conversation_id = ?`, conv.ID).Scan(&count))
	req.Zero(count)

	req.ErrorIs(database.DeleteConversation(conv.ID, alice.ID), errs.ErrNotFound)
}

func TestDeleteMessage(t *testing.T) {
	database := testDB(t)
	alice := testUser(t, database, "alice")
	bob := testUser(t, database, "bob")

	t.Run("should remove only the targeted row and keep order", func(t *testing.T) {
		req := require.New(t)
		conv, err := database.CreateConversation(alice.ID, "pruning")
		req.NoError(err)

		var ids []int64
		for i := 0; i < 3; i++ {
			msg := &models.Message{ConvID: conv.ID, UserID: alice.ID, Role: models.RoleUser, Content: fmt.Sprintf("msg %d", i)}
			req.NoError(database.SaveMessage(msg))
			ids = append(ids, msg.ID)
		}

		req.NoError(database.DeleteMessage(conv.ID, alice.ID, ids[1]))

		history, err := database.GetConversationHistory(conv.ID, alice.ID)
		req.NoError(err)
		req.Len(history, 2)
		req.Equal("msg 0", history[0].Content)
		req.Equal("msg 2", history[1].Content)
	})

	t.Run("should refuse a foreign conversation", func(t *testing.T) {
		req := require.New(t)
		conv, err := database.CreateConversation(alice.ID, "mine")
		req.NoError(err)
		msg := &models.Message{ConvID: conv.ID, UserID: alice.ID, Role: models.RoleUser, Content: "hi"}
		req.NoError(database.SaveMessage(msg))

		req.ErrorIs(database.DeleteMessage(conv.ID, bob.ID, msg.ID), errs.ErrNotFound)
	})

	t.Run("should report a missing message", func(t *testing.T) {
		req := require.New(t)
		conv, err := database.CreateConversation(alice.ID, "empty")
		req.NoError(err)

		req.ErrorIs(database.DeleteMessage(conv.ID, alice.ID, 99999), errs.ErrNotFound)
	})
}
