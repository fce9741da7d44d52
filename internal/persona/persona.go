// Package persona resolves the system instruction that frames every chat turn.
package persona

import (
	"context"
	"strings"

	"github.com/comigor/gustavo-go/internal/logger"
)

// Default is the compiled-in persona used when no override is stored.
const Default = `Você é Gustavo, um especialista em farms automáticas e eficientes no Minecraft (Java e Bedrock). Seu estilo é amigável, direto e cheio de dicas práticas. Você conhece profundamente as mecânicas do jogo, incluindo redstone, mobs, agricultura e otimização de farms para diferentes versões.

Ao conversar com jogadores, sempre pergunte primeiro qual é a versão do Minecraft (Java ou Bedrock) e se jogam no modo sobrevivência, criativo ou hardcore, para dar respostas precisas.

Seu objetivo é ajudar os jogadores a:
– Escolher a farm ideal de acordo com suas necessidades (XP, drops, comida, etc.)
– Construir farms com materiais acessíveis
– Otimizar o rendimento de farms já existentes
– Corrigir falhas em farms que não funcionam corretamente

Seja sempre claro nas explicações e ofereça passo a passo simples, incluindo sugestões de blocos, altura ideal de construção, local (bioma), e riscos envolvidos.

Se o jogador for iniciante, use uma linguagem mais acessível. Se for avançado, pode usar termos técnicos de Minecraft (como "mob cap", "spawn-proofing", "hopper clock", etc).

Quando possível, sugira vídeos, tutoriais ou esquemas para facilitar a construção.`

// DefaultGlobalKey names the operator-wide override.
const DefaultGlobalKey = "global"

const userKeyPrefix = "user:"

// Store persists persona overrides. A missing key yields "", nil.
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
}

// Resolver picks the effective instruction: per-user override, then operator override, then Default.
type Resolver struct {
	store     Store
	globalKey string
	fallback  string
}

// NewResolver builds a Resolver over store. An empty globalKey means DefaultGlobalKey.
func NewResolver(store Store, globalKey string) *Resolver {
	if globalKey == "" {
		globalKey = DefaultGlobalKey
	}
	return &Resolver{store: store, globalKey: globalKey, fallback: Default}
}

// WithDefault replaces the compiled-in persona.
func (r *Resolver) WithDefault(text string) *Resolver {
	r.fallback = text
	return r
}

// Resolve never fails: store errors are logged and the next level is tried.
func (r *Resolver) Resolve(ctx context.Context, userID string) string {
	if userID != "" {
		if v := r.lookup(ctx, UserKey(userID)); v != "" {
			return v
		}
	}
	if v := r.lookup(ctx, r.globalKey); v != "" {
		return v
	}
	return r.fallback
}

func (r *Resolver) lookup(ctx context.Context, key string) string {
	v, err := r.store.Get(ctx, key)
	if err != nil {
		logger.From(ctx).Warn("persona lookup failed", "key", key, "error", err)
		return ""
	}
	return strings.TrimSpace(v)
}

// Global returns the stored operator override, possibly empty.
func (r *Resolver) Global(ctx context.Context) (string, error) {
	return r.store.Get(ctx, r.globalKey)
}

// SetGlobal stores the operator override. An empty text clears it.
func (r *Resolver) SetGlobal(ctx context.Context, text string) error {
	return r.store.Set(ctx, r.globalKey, text)
}

// User returns the stored override of userID, possibly empty.
func (r *Resolver) User(ctx context.Context, userID string) (string, error) {
	return r.store.Get(ctx, UserKey(userID))
}

// SetUser stores the override of userID. An empty text clears it.
func (r *Resolver) SetUser(ctx context.Context, userID, text string) error {
	return r.store.Set(ctx, UserKey(userID), text)
}

// UserKey is the store key of a per-user override.
func UserKey(userID string) string { return userKeyPrefix + userID }
