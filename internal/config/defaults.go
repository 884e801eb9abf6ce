package config

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "sqlite"
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/shashin/data/db/embeddings.db"
	}
	if cfg.Tokenizer.MergesPath == "" {
		cfg.Tokenizer.MergesPath = "/usr/local/var/shashin/data/models/bpe_simple_vocab_16e6.txt.gz"
	}
	if cfg.Tokenizer.ContextLength == 0 {
		cfg.Tokenizer.ContextLength = 77
	}
	// 49152 tokens minus the 256 base bytes and the two special tokens.
	if cfg.Tokenizer.MaxMerges == 0 {
		cfg.Tokenizer.MaxMerges = 48894
	}
	if cfg.Tokenizer.CacheSize == 0 {
		cfg.Tokenizer.CacheSize = 10000
	}
	if cfg.Embedding.TextModelPath == "" {
		cfg.Embedding.TextModelPath = "/usr/local/var/shashin/data/models/clip-text-vit-b32.onnx"
	}
	if cfg.Embedding.ImageModelPath == "" {
		cfg.Embedding.ImageModelPath = "/usr/local/var/shashin/data/models/clip-image-vit-b32.onnx"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 512
	}
	if cfg.Embedding.ImageSize == 0 {
		cfg.Embedding.ImageSize = 224
	}
	if cfg.Embedding.TextInputName == "" {
		cfg.Embedding.TextInputName = "input_ids"
	}
	if cfg.Embedding.TextOutputName == "" {
		cfg.Embedding.TextOutputName = "text_embeds"
	}
	if cfg.Embedding.ImageInputName == "" {
		cfg.Embedding.ImageInputName = "pixel_values"
	}
	if cfg.Embedding.ImageOutputName == "" {
		cfg.Embedding.ImageOutputName = "image_embeds"
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 1000
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 20
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 100
	}
	if cfg.Search.DefaultThreshold == nil {
		t := 0.2
		cfg.Search.DefaultThreshold = &t
	}
	if cfg.Library.Extensions == nil {
		cfg.Library.Extensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp", ".tiff"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Library.Directories) > 0 && cfg.Library.Recursive == nil {
		t := true
		cfg.Library.Recursive = &t
	}
}
