package main

import (
	"log"
	"os"

	"llm-knowledge-be/internal/config"
	"llm-knowledge-be/internal/entity"
	"llm-knowledge-be/internal/model"
	"llm-knowledge-be/pkg/database"

	"gorm.io/gorm"
)

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func main() {
	cfg := config.Load()
	if cfg.Database.Connection == "" {
		log.Fatal("Error: DB_CONNECTION_STRING is not set")
	}

	db, err := database.Open(cfg.Database.Connection, cfg.Database.Debug)
	if err != nil {
		log.Fatal("Error: Failed to connect to database:", err)
	}

	log.Println("Seeding provider catalog...")
	provider := seedProvider(db, model.Provider{
		Name:    "local-ollama",
		Service: "ollama",
		BaseURL: getEnv("OLLAMA_BASE_URL", "http://localhost:11434"),
	})

	seedModel(db, model.LLMModel{
		ProviderId:        provider.Id,
		Name:              getEnv("OLLAMA_CHAT_MODEL", "llama3.1"),
		Use:               string(entity.ModelUseChat),
		SupportsStreaming: true,
	})
	embedModel := seedModel(db, model.LLMModel{
		ProviderId: provider.Id,
		Name:       getEnv("OLLAMA_EMBED_MODEL", "nomic-embed-text"),
		Use:        string(entity.ModelUseEmbedding),
		Dimensions: 768,
	})

	log.Println("Seeding vector store...")
	storeService := entity.StoreServiceMemory
	if database.IsPostgres(db) {
		storeService = entity.StoreServicePgVector
	}
	store := seedStore(db, model.Store{
		Name:    "default",
		Service: string(storeService),
		Active:  true,
	})

	log.Println("Seeding default collection...")
	seedCollection(db, model.Collection{
		Name:             "default",
		Description:      "Default knowledge collection",
		Active:           true,
		EmbeddingModelId: &embedModel.Id,
		StoreId:          &store.Id,
	})

	log.Println("Catalog seeding completed!")
}

func seedProvider(db *gorm.DB, p model.Provider) model.Provider {
	var existing model.Provider
	if err := db.Where("name = ?", p.Name).First(&existing).Error; err == nil {
		log.Printf("Provider '%s' already exists, skipping...", p.Name)
		return existing
	}
	mustCreate(db, &p, "provider", p.Name)
	return p
}

func seedModel(db *gorm.DB, m model.LLMModel) model.LLMModel {
	var existing model.LLMModel
	if err := db.Where("provider_id = ? AND name = ?", m.ProviderId, m.Name).First(&existing).Error; err == nil {
		log.Printf("Model '%s' already exists, skipping...", m.Name)
		return existing
	}
	mustCreate(db, &m, "model", m.Name)
	return m
}

func seedStore(db *gorm.DB, s model.Store) model.Store {
	var existing model.Store
	if err := db.Where("name = ?", s.Name).First(&existing).Error; err == nil {
		log.Printf("Store '%s' already exists, skipping...", s.Name)
		return existing
	}
	mustCreate(db, &s, "store", s.Name)
	return s
}

func seedCollection(db *gorm.DB, c model.Collection) {
	var existing model.Collection
	if err := db.Where("name = ?", c.Name).First(&existing).Error; err == nil {
		log.Printf("Collection '%s' already exists, skipping...", c.Name)
		return
	}
	mustCreate(db, &c, "collection", c.Name)
}

func mustCreate(db *gorm.DB, v interface{}, kind, name string) {
	if err := db.Create(v).Error; err != nil {
		log.Fatalf("Error creating %s '%s': %v", kind, name, err)
	}
	log.Printf("Created %s: %s", kind, name)
}
