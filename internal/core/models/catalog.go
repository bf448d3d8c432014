package models

const (
	ClassTag                        = "Tag"
	ClassStore                      = "Store"
	ClassStoreTag                   = "StoreTag"
	ClassStapleTemplateItem         = "StapleTemplateItem"
	ClassStapleTemplateShoppingList = "StapleTemplateShoppingList"
	ClassStapleItem                 = "StapleItem"
	ClassStapleShoppingList         = "StapleShoppingList"
	ClassStoreProduct               = "StoreProduct"
	ClassProductPrice               = "ProductPrice"
	ClassStoreMasterProduct         = "StoreMasterProduct"
	ClassMasterProduct              = "MasterProduct"
)

type Tag struct {
	Base
	Key        string `json:"key"`
	Name       string `json:"name,omitempty"`
	Level      int    `json:"level,omitempty"`
	ForDisplay bool   `json:"forDisplay"`
}

type Store struct {
	Base
	Key  string `json:"key"`
	Name string `json:"name,omitempty"`
}

// StoreTag is a store's own category; TagID links it to a global Tag once mapped.
type StoreTag struct {
	Base
	StoreID string `json:"storeId"`
	Key     string `json:"key"`
	Name    string `json:"name,omitempty"`
	TagID   string `json:"tagId,omitempty"`
}

type StapleTemplateItem struct {
	Base
	Name    string   `json:"name"`
	TagIDs  []string `json:"tagIds"`
	Popular bool     `json:"popular"`
}

type StapleTemplateShoppingList struct {
	Base
	Description string   `json:"description"`
	TagIDs      []string `json:"tagIds"`
}

// StapleItem is a user owned copy of a StapleTemplateItem.
type StapleItem struct {
	Base
	UserID               string   `json:"userId"`
	StapleTemplateItemID string   `json:"stapleTemplateItemId"`
	Name                 string   `json:"name"`
	TagIDs               []string `json:"tagIds"`
	Popular              bool     `json:"popular"`
}

type StapleShoppingList struct {
	Base
	UserID                       string   `json:"userId"`
	StapleTemplateShoppingListID string   `json:"stapleTemplateShoppingListId"`
	Description                  string   `json:"description"`
	TagIDs                       []string `json:"tagIds"`
}

type StoreMasterProduct struct {
	Base
	StoreID           string `json:"storeId,omitempty"`
	LastCrawlDateTime *Date  `json:"lastCrawlDateTime,omitempty"`
}

type MasterProduct struct {
	Base
	Name             string `json:"name,omitempty"`
	ImportedImageURL string `json:"importedImageUrl,omitempty"`
	ImageURL         string `json:"imageUrl,omitempty"`
}
