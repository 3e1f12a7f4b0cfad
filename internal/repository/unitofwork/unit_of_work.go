package unitofwork

import (
	"context"

	"llm-knowledge-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	ResourceRepository() contract.ResourceRepository
	ChunkRepository() contract.ChunkRepository
	AttachmentRepository() contract.AttachmentRepository
	CollectionRepository() contract.CollectionRepository
	StoreRepository() contract.StoreRepository

	ProviderRepository() contract.ProviderRepository
	ModelRepository() contract.ModelRepository

	AssistantRepository() contract.AssistantRepository
	ThreadRepository() contract.ThreadRepository
	MessageRepository() contract.MessageRepository

	GenerationJobRepository() contract.GenerationJobRepository
	GenerationQueueRepository() contract.GenerationQueueRepository
}
