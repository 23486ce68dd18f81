package services

import (
	"context"
	"strings"
	"time"

	"github.com/disgoorg/snowflake/v2"
	lru "github.com/hashicorp/golang-lru"
	"github.com/nonagon/questbot/questbot/database/models"
	"github.com/nonagon/questbot/questbot/database/repositories"
	"github.com/sahilm/fuzzy"
)

const (
	lookupCacheSize   = 512
	lookupCacheExpiry = 2 * time.Minute
)

// questSearchItems implements fuzzy.Source over quest titles.
type questSearchItems []questSearchItem

type questSearchItem struct {
	Quest *models.Quest
	Name  string
}

func (items questSearchItems) Len() int            { return len(items) }
func (items questSearchItems) String(i int) string { return items[i].Name }

type characterSearchItems []characterSearchItem

type characterSearchItem struct {
	Character *models.Character
	Name      string
}

func (items characterSearchItems) Len() int            { return len(items) }
func (items characterSearchItems) String(i int) string { return items[i].Name }

type cachedGuildIndex struct {
	quests     []*models.Quest
	characters []*models.Character
	fetchedAt  time.Time
}

// LookupService resolves free-text quest and character references from
// command options. Guild indexes are fetched from the store and cached
// briefly so repeated autocompletes stay off the database.
type LookupService struct {
	store  *repositories.Store
	cache  *lru.Cache
	expiry time.Duration
	now    func() time.Time
}

func NewLookupService(store *repositories.Store) *LookupService {
	cache, _ := lru.New(lookupCacheSize)
	return &LookupService{
		store:  store,
		cache:  cache,
		expiry: lookupCacheExpiry,
		now:    time.Now,
	}
}

// FindQuest returns relevance-sorted quests whose titles match the query.
// An exact entity id is resolved directly without searching.
func (s *LookupService) FindQuest(ctx context.Context, guildID snowflake.ID, query string) ([]*models.Quest, error) {
	index, err := s.guildIndex(ctx, guildID)
	if err != nil {
		return nil, err
	}

	query = normalizeQuery(query)
	if query == "" {
		return index.quests, nil
	}

	if q := matchQuestID(index.quests, query); q != nil {
		return []*models.Quest{q}, nil
	}

	items := make(questSearchItems, len(index.quests))
	for i, q := range index.quests {
		items[i] = questSearchItem{Quest: q, Name: normalizeQuery(q.Title)}
	}

	matches := fuzzy.FindFrom(query, items)
	results := make([]*models.Quest, len(matches))
	for i, match := range matches {
		results[i] = items[match.Index].Quest
	}
	return results, nil
}

// FindCharacter returns the owner's characters matching the query, best
// match first.
func (s *LookupService) FindCharacter(ctx context.Context, guildID snowflake.ID, ownerID string, query string) ([]*models.Character, error) {
	index, err := s.guildIndex(ctx, guildID)
	if err != nil {
		return nil, err
	}

	var owned []*models.Character
	for _, c := range index.characters {
		if c.OwnerID == ownerID && !c.Retired {
			owned = append(owned, c)
		}
	}

	query = normalizeQuery(query)
	if query == "" {
		return owned, nil
	}

	items := make(characterSearchItems, len(owned))
	for i, c := range owned {
		items[i] = characterSearchItem{Character: c, Name: normalizeQuery(c.Name)}
	}

	matches := fuzzy.FindFrom(query, items)
	results := make([]*models.Character, len(matches))
	for i, match := range matches {
		results[i] = items[match.Index].Character
	}
	return results, nil
}

// Invalidate drops a guild's cached index so the next lookup sees fresh
// store state. Commands call it after creating quests or characters.
func (s *LookupService) Invalidate(guildID snowflake.ID) {
	s.cache.Remove(guildID)
}

func (s *LookupService) guildIndex(ctx context.Context, guildID snowflake.ID) (*cachedGuildIndex, error) {
	if cached, ok := s.cache.Get(guildID); ok {
		index := cached.(*cachedGuildIndex)
		if s.now().Sub(index.fetchedAt) < s.expiry {
			return index, nil
		}
		s.cache.Remove(guildID)
	}

	quests, err := s.store.Quests().GetByGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	characters, err := s.store.Characters().GetByGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}

	index := &cachedGuildIndex{
		quests:     quests,
		characters: characters,
		fetchedAt:  s.now(),
	}
	s.cache.Add(guildID, index)
	return index, nil
}

func matchQuestID(quests []*models.Quest, query string) *models.Quest {
	upper := strings.ToUpper(query)
	for _, q := range quests {
		if q.ID == upper {
			return q
		}
	}
	return nil
}

func normalizeQuery(query string) string {
	return strings.Join(strings.Fields(strings.ToLower(query)), " ")
}
