package elasticsearch

// DefaultIndexName is the index used when none is configured.
const DefaultIndexName = "gule_products"

// indexMapping is the products index definition. Names and descriptions
// are mostly Turkish; name also carries an edge n-gram subfield for
// prefix matches.
const indexMapping = `{
  "settings": {
    "number_of_shards": 1,
    "number_of_replicas": 0,
    "analysis": {
      "analyzer": {
        "turkish_analyzer": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["apostrophe", "turkish_lowercase", "turkish_stop", "turkish_stemmer"]
        },
        "autocomplete_analyzer": {
          "type": "custom",
          "tokenizer": "autocomplete_tokenizer",
          "filter": ["turkish_lowercase"]
        },
        "autocomplete_search": {
          "type": "custom",
          "tokenizer": "standard",
          "filter": ["turkish_lowercase"]
        }
      },
      "tokenizer": {
        "autocomplete_tokenizer": {
          "type": "edge_ngram",
          "min_gram": 2,
          "max_gram": 20,
          "token_chars": ["letter", "digit"]
        }
      },
      "filter": {
        "turkish_lowercase": { "type": "lowercase", "language": "turkish" },
        "turkish_stop": { "type": "stop", "stopwords": "_turkish_" },
        "turkish_stemmer": { "type": "stemmer", "language": "turkish" }
      }
    }
  },
  "mappings": {
    "properties": {
      "id":          { "type": "keyword" },
      "seller_id":   { "type": "keyword" },
      "name":        { "type": "text", "analyzer": "turkish_analyzer", "fields": { "autocomplete": { "type": "text", "analyzer": "autocomplete_analyzer", "search_analyzer": "autocomplete_search" } } },
      "description": { "type": "text", "analyzer": "turkish_analyzer" },
      "price":       { "type": "long" },
      "currency":    { "type": "keyword" },
      "created_at":  { "type": "date" }
    }
  }
}`
